package analysis

import (
	"context"
	"fmt"

	"github.com/tphakala/birdnet-batch/internal/errors"
)

// errSkipped marks a file whose results already exist.
var errSkipped = errors.NewStd("results already exist")

// FileError reports why one file of a run failed.
type FileError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// newFileError classifies err by its category.
func newFileError(path string, err error) *FileError {
	var reason string
	switch {
	case errors.IsAudioReadError(err):
		reason = "unreadable audio"
	case errors.IsInferenceError(err):
		reason = "inference failed"
	case errors.IsFormatError(err):
		reason = "output could not be written"
	case errors.IsConfigurationError(err):
		reason = "invalid configuration"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timed out"
	default:
		reason = "analysis failed"
	}
	return &FileError{Path: path, Reason: reason, Err: err}
}
