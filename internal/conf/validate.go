package conf

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tphakala/birdnet-batch/internal/errors"
)

// ValidationError collects every problem found in a settings value.
type ValidationError struct {
	Errors []string
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("invalid settings: %s", strings.Join(v.Errors, "; "))
}

// ValidateSettings checks all parameters that must hold before any I/O is
// scheduled. The returned error is a configuration error.
func ValidateSettings(s *Settings) error {
	ve := ValidationError{}
	add := func(format string, args ...any) {
		ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
	}

	w := s.Window
	if w.Length <= 0 {
		add("window length must be positive, got %v", w.Length)
	}
	if w.Overlap < 0 || w.Overlap >= w.Length {
		add("%v: got overlap %v for window length %v", errors.ErrInvalidOverlap, w.Overlap, w.Length)
	}
	if w.Speed <= 0 {
		add("audio speed must be positive, got %v", w.Speed)
	}
	if w.MinLength <= 0 || w.MinLength > w.Length {
		add("minimum window length must be in (0, %v], got %v", w.Length, w.MinLength)
	}
	if w.SegmentDuration < w.Length {
		add("segment duration %v must be at least the window length %v", w.SegmentDuration, w.Length)
	}
	if w.SampleRate <= 0 {
		add("sample rate must be positive, got %d", w.SampleRate)
	}
	if w.FMin < 0 || w.FMax <= w.FMin {
		add("bandpass must satisfy 0 <= fmin < fmax, got fmin=%v fmax=%v", w.FMin, w.FMax)
	}

	in := s.Inference
	if in.BatchSize < 1 {
		add("%v: got %d", errors.ErrInvalidBatchSize, in.BatchSize)
	}
	if in.Sensitivity < 0.5 || in.Sensitivity > 1.5 {
		add("sensitivity must be between 0.5 and 1.5, got %v", in.Sensitivity)
	}
	if in.MinConfidence < 0 || in.MinConfidence > 1 {
		add("minimum confidence must be between 0 and 1, got %v", in.MinConfidence)
	}
	if in.TopN < 0 {
		add("top-n must not be negative, got %d", in.TopN)
	}

	if len(s.Output.Types) == 0 {
		add("at least one output type is required")
	}
	for _, t := range s.Output.Types {
		if !slices.Contains(OutputTypes, t) {
			add("unknown output type %q, valid types are %s", t, strings.Join(OutputTypes, ", "))
		}
	}
	for _, c := range s.Output.AdditionalColumns {
		if !slices.Contains(AdditionalColumns, c) {
			add("unknown additional column %q", c)
		}
	}

	e := s.Embeddings
	switch e.Backend {
	case BackendMemory, BackendSQLite, BackendBadger:
	default:
		add("unknown embeddings backend %q", e.Backend)
	}
	if e.BatchSize < 1 {
		add("embeddings %v: got %d", errors.ErrInvalidBatchSize, e.BatchSize)
	}
	switch e.Metric {
	case "cosine", "dot", "euclidean":
	default:
		add("unknown similarity metric %q", e.Metric)
	}
	if e.Results < 1 {
		add("search result count must be at least 1, got %d", e.Results)
	}

	if s.Workers < 1 {
		add("workers must be at least 1, got %d", s.Workers)
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("problems", len(ve.Errors)).
			Build()
	}
	return nil
}
