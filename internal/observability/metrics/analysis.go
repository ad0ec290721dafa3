package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// File outcomes.
const (
	FileAnalyzed = "analyzed"
	FileFailed   = "failed"
	FileSkipped  = "skipped"
)

// AnalysisMetrics tracks the progress of a batch run.
type AnalysisMetrics struct {
	FilesTotal       *prometheus.CounterVec
	FileDuration     prometheus.Histogram
	ChunksTotal      prometheus.Counter
	BatchesTotal     prometheus.Counter
	EmbeddingsStored prometheus.Counter
	OutputWrites     *prometheus.CounterVec
	ActiveFiles      prometheus.Gauge
}

// NewAnalysisMetrics creates the run metrics and registers them on registry.
func NewAnalysisMetrics(registry *prometheus.Registry) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{
		FilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_files_total",
				Help: "Audio files handled, partitioned by outcome.",
			},
			[]string{"status"},
		),
		FileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "analysis_file_duration_seconds",
				Help:    "Wall time spent analyzing one audio file",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5min
			},
		),
		ChunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_chunks_total",
				Help: "Audio windows passed to the model.",
			},
		),
		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_batches_total",
				Help: "Model batches submitted.",
			},
		),
		EmbeddingsStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_embeddings_stored_total",
				Help: "Embedding vectors inserted into the vector store.",
			},
		),
		OutputWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_output_writes_total",
				Help: "Result files written, partitioned by format and outcome.",
			},
			[]string{"format", "status"},
		),
		ActiveFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "analysis_active_files",
				Help: "Number of files currently being analyzed",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return m, nil
}

// RecordFile counts a finished file and, for analyzed files, its duration.
func (m *AnalysisMetrics) RecordFile(status string, seconds float64) {
	m.FilesTotal.WithLabelValues(status).Inc()
	if status == FileAnalyzed {
		m.FileDuration.Observe(seconds)
	}
}

// RecordOutput counts a result file write.
func (m *AnalysisMetrics) RecordOutput(format string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.OutputWrites.WithLabelValues(format, status).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FilesTotal.Describe(ch)
	ch <- m.FileDuration.Desc()
	ch <- m.ChunksTotal.Desc()
	ch <- m.BatchesTotal.Desc()
	ch <- m.EmbeddingsStored.Desc()
	m.OutputWrites.Describe(ch)
	ch <- m.ActiveFiles.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FilesTotal.Collect(ch)
	ch <- m.FileDuration
	ch <- m.ChunksTotal
	ch <- m.BatchesTotal
	ch <- m.EmbeddingsStored
	m.OutputWrites.Collect(ch)
	ch <- m.ActiveFiles
}
