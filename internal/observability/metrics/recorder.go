// Package metrics provides custom Prometheus metrics for batch analysis runs.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on it rather than on concrete collectors so tests can
// observe what was recorded.
type Recorder interface {
	// RecordOperation records an operation (e.g. "predict", "embed") with
	// its outcome ("success" or "error").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)
}

// Status values used with RecordOperation.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string)     {}
