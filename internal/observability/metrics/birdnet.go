package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// BirdNETMetrics contains the Prometheus metrics of model operations.
type BirdNETMetrics struct {
	DetectionCounter *prometheus.CounterVec

	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	OperationErrors   *prometheus.CounterVec
}

// NewBirdNETMetrics creates the model metrics and registers them on registry.
func NewBirdNETMetrics(registry *prometheus.Registry) (*BirdNETMetrics, error) {
	m := &BirdNETMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register BirdNET metrics: %w", err)
	}
	return m, nil
}

func (m *BirdNETMetrics) initMetrics() {
	m.DetectionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdnet_detections_total",
			Help: "Total number of reported detections partitioned by species label.",
		},
		[]string{"species"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "birdnet_operation_duration_seconds",
			Help:    "Time taken by model operations such as batch prediction and embedding",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"operation"},
	)

	m.OperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdnet_operations_total",
			Help: "Total number of model operations",
		},
		[]string{"operation", "status"},
	)

	m.OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdnet_operation_errors_total",
			Help: "Total number of model operation errors",
		},
		[]string{"operation", "error_type"},
	)
}

// IncrementDetectionCounter counts one reported detection of species.
func (m *BirdNETMetrics) IncrementDetectionCounter(species string) {
	m.DetectionCounter.WithLabelValues(species).Inc()
}

func (m *BirdNETMetrics) RecordOperation(operation, status string) {
	m.OperationTotal.WithLabelValues(operation, status).Inc()
}

func (m *BirdNETMetrics) RecordDuration(operation string, seconds float64) {
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *BirdNETMetrics) RecordError(operation, errorType string) {
	m.OperationErrors.WithLabelValues(operation, errorType).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *BirdNETMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DetectionCounter.Describe(ch)
	m.OperationDuration.Describe(ch)
	m.OperationTotal.Describe(ch)
	m.OperationErrors.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *BirdNETMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DetectionCounter.Collect(ch)
	m.OperationDuration.Collect(ch)
	m.OperationTotal.Collect(ch)
	m.OperationErrors.Collect(ch)
}
