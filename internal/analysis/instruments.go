package analysis

import (
	"time"

	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/observability"
	"github.com/tphakala/birdnet-batch/internal/observability/metrics"
	"github.com/tphakala/birdnet-batch/internal/observation"
)

// instruments records run metrics. The zero value and a nil Metrics record
// nothing.
type instruments struct {
	rec     metrics.Recorder
	metrics *observability.Metrics
}

func newInstruments(m *observability.Metrics) instruments {
	if m == nil {
		return instruments{rec: metrics.NopRecorder{}}
	}
	return instruments{rec: m.BirdNET, metrics: m}
}

// inference observes one model invocation over chunks windows.
func (in instruments) inference(op string, started time.Time, chunks int, err error) {
	if err != nil {
		in.rec.RecordOperation(op, metrics.StatusError)
		in.rec.RecordError(op, errorType(err))
		return
	}
	in.rec.RecordOperation(op, metrics.StatusSuccess)
	in.rec.RecordDuration(op, time.Since(started).Seconds())
	if in.metrics != nil {
		in.metrics.Analysis.BatchesTotal.Inc()
		in.metrics.Analysis.ChunksTotal.Add(float64(chunks))
	}
}

func (in instruments) file(status string, seconds float64) {
	if in.metrics != nil {
		in.metrics.Analysis.RecordFile(status, seconds)
	}
}

func (in instruments) output(f observation.Format, err error) {
	if in.metrics != nil {
		in.metrics.Analysis.RecordOutput(f.String(), err)
	}
}

func (in instruments) detection(label string) {
	if in.metrics != nil {
		in.metrics.BirdNET.IncrementDetectionCounter(label)
	}
}

func (in instruments) stored(n int) {
	if in.metrics != nil {
		in.metrics.Analysis.EmbeddingsStored.Add(float64(n))
	}
}

// active tracks a file in progress and returns its release func.
func (in instruments) active() func() {
	if in.metrics == nil {
		return func() {}
	}
	in.metrics.Analysis.ActiveFiles.Inc()
	return in.metrics.Analysis.ActiveFiles.Dec
}

// errorType names the category of err for metric labels.
func errorType(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}
