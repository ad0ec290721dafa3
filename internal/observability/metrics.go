// Package observability provides Prometheus metrics for analysis runs.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/birdnet-batch/internal/logger"
	"github.com/tphakala/birdnet-batch/internal/observability/metrics"
)

// Metrics holds all the metric collectors of a run.
type Metrics struct {
	registry *prometheus.Registry
	BirdNET  *metrics.BirdNETMetrics
	Analysis *metrics.AnalysisMetrics
}

// NewMetrics creates a private registry with all collectors registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	birdnetMetrics, err := metrics.NewBirdNETMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create BirdNET metrics: %w", err)
	}

	analysisMetrics, err := metrics.NewAnalysisMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		BirdNET:  birdnetMetrics,
		Analysis: analysisMetrics,
	}, nil
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes all metrics in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	logger.Global().Module("metrics").Debug("metrics textfile written", logger.String("path", path))
	return nil
}
