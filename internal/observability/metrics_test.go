package observability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-batch/internal/observability/metrics"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently
// since every call owns its registry.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			assert.NoError(t, err)
			if assert.NotNil(t, m) {
				assert.NotNil(t, m.BirdNET)
				assert.NotNil(t, m.Analysis)
			}
		})
	}
	wg.Wait()
}

func TestRecording(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	var rec metrics.Recorder = m.BirdNET
	rec.RecordOperation("predict", metrics.StatusSuccess)
	rec.RecordOperation("predict", metrics.StatusSuccess)
	rec.RecordOperation("predict", metrics.StatusError)
	rec.RecordError("predict", "inference")
	rec.RecordDuration("predict", 0.02)
	m.BirdNET.IncrementDetectionCounter("Parus major_Great Tit")

	assert.InDelta(t, 2, testutil.ToFloat64(m.BirdNET.OperationTotal.WithLabelValues("predict", metrics.StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BirdNET.OperationErrors.WithLabelValues("predict", "inference")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BirdNET.DetectionCounter.WithLabelValues("Parus major_Great Tit")), 0)

	m.Analysis.RecordFile(metrics.FileAnalyzed, 1.5)
	m.Analysis.RecordFile(metrics.FileFailed, 0)
	m.Analysis.RecordOutput("table", nil)
	m.Analysis.RecordOutput("csv", errors.New("disk full"))
	m.Analysis.ChunksTotal.Add(40)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Analysis.FilesTotal.WithLabelValues(metrics.FileFailed)), 0)
	assert.InDelta(t, 40, testutil.ToFloat64(m.Analysis.ChunksTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Analysis.OutputWrites.WithLabelValues("csv", metrics.StatusError)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.Analysis.FileDuration))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Analysis.RecordFile(metrics.FileSkipped, 0)

	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `analysis_files_total{status="skipped"} 1`)

	err = testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(`
# HELP analysis_files_total Audio files handled, partitioned by outcome.
# TYPE analysis_files_total counter
analysis_files_total{status="skipped"} 1
`), "analysis_files_total")
	require.NoError(t, err)
}

func TestNopRecorder(t *testing.T) {
	t.Parallel()

	var rec metrics.Recorder = metrics.NopRecorder{}
	assert.NotPanics(t, func() {
		rec.RecordOperation("predict", metrics.StatusSuccess)
		rec.RecordDuration("predict", 1)
		rec.RecordError("predict", "x")
	})
}
