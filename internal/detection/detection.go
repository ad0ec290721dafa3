// Package detection provides the time-keyed detection model and the
// consecutive-detection merger.
//
// Time ranges are handled as structured (start, end) pairs throughout and
// only rendered as "start-end" keys at the output boundary, so merging never
// reparses its own keys.
package detection

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tphakala/birdnet-batch/internal/errors"
)

// TimeRange is a span of a recording in file seconds.
type TimeRange struct {
	Start float64
	End   float64
}

// Key renders the range as "start-end", e.g. "0.0-3.0".
func (r TimeRange) Key() string {
	return FormatSeconds(r.Start) + "-" + FormatSeconds(r.End)
}

// Duration returns End - Start.
func (r TimeRange) Duration() float64 { return r.End - r.Start }

// FormatSeconds renders v in its shortest exact form with at least one
// decimal place.
func FormatSeconds(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ParseKey parses a "start-end" key. The split is on the first '-' since
// time ranges are never negative.
func ParseKey(key string) (TimeRange, error) {
	startStr, endStr, found := strings.Cut(key, "-")
	if !found {
		return TimeRange{}, malformedKey(key, fmt.Errorf("missing separator"))
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(startStr), 64)
	if err != nil {
		return TimeRange{}, malformedKey(key, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(endStr), 64)
	if err != nil {
		return TimeRange{}, malformedKey(key, err)
	}
	if start < 0 || end < start {
		return TimeRange{}, malformedKey(key, fmt.Errorf("invalid bounds"))
	}
	return TimeRange{Start: start, End: end}, nil
}

func malformedKey(key string, cause error) error {
	return errors.New(fmt.Errorf("%w %q: %w", errors.ErrMalformedKey, key, cause)).
		Component("detection").
		Category(errors.CategoryValidation).
		Context("key", key).
		Build()
}

// Prediction is one label scored within a time range.
type Prediction struct {
	Label      string
	Confidence float64
	Count      int // original detections represented, 1 unless merged
}

// Detection is a prediction together with its time range.
type Detection struct {
	Range TimeRange
	Prediction
}

// Set maps time ranges to their predictions. Ranges keep insertion order
// and predictions keep insertion order within a range. A Set is not safe
// for concurrent mutation.
type Set struct {
	order   []TimeRange
	entries map[TimeRange][]Prediction
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{entries: make(map[TimeRange][]Prediction)}
}

// Add records a single original detection.
func (s *Set) Add(r TimeRange, label string, confidence float64) {
	s.AddPrediction(r, Prediction{Label: label, Confidence: confidence, Count: 1})
}

// AddPrediction records p under r. A zero Count is treated as 1.
func (s *Set) AddPrediction(r TimeRange, p Prediction) {
	if p.Count < 1 {
		p.Count = 1
	}
	if s.entries == nil {
		s.entries = make(map[TimeRange][]Prediction)
	}
	if _, ok := s.entries[r]; !ok {
		s.order = append(s.order, r)
	}
	s.entries[r] = append(s.entries[r], p)
}

// AddKey records a detection under a "start-end" key. Malformed keys are
// rejected with ErrMalformedKey and leave the set unchanged.
func (s *Set) AddKey(key, label string, confidence float64) error {
	r, err := ParseKey(key)
	if err != nil {
		return err
	}
	s.Add(r, label, confidence)
	return nil
}

// Ranges returns the time ranges in insertion order.
func (s *Set) Ranges() []TimeRange {
	return slices.Clone(s.order)
}

// Keys returns the rendered keys in insertion order.
func (s *Set) Keys() []string {
	keys := make([]string, len(s.order))
	for i, r := range s.order {
		keys[i] = r.Key()
	}
	return keys
}

// Get returns a copy of the predictions recorded for r.
func (s *Set) Get(r TimeRange) []Prediction {
	return slices.Clone(s.entries[r])
}

// Len returns the total number of predictions.
func (s *Set) Len() int {
	n := 0
	for _, preds := range s.entries {
		n += len(preds)
	}
	return n
}

// Empty reports whether the set holds no predictions.
func (s *Set) Empty() bool { return len(s.order) == 0 }

// Detections flattens the set in insertion order.
func (s *Set) Detections() []Detection {
	out := make([]Detection, 0, s.Len())
	for _, r := range s.order {
		for _, p := range s.entries[r] {
			out = append(out, Detection{Range: r, Prediction: p})
		}
	}
	return out
}

// Sorted flattens the set ordered by start then end time. Detections with
// equal ranges keep insertion order.
func (s *Set) Sorted() []Detection {
	out := s.Detections()
	slices.SortStableFunc(out, func(a, b Detection) int {
		if c := compareFloat(a.Range.Start, b.Range.Start); c != 0 {
			return c
		}
		return compareFloat(a.Range.End, b.Range.End)
	})
	return out
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	c := NewSet()
	for _, r := range s.order {
		c.order = append(c.order, r)
		c.entries[r] = slices.Clone(s.entries[r])
	}
	return c
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
