// Package observability owns the metric registry of a command run.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Hub        *metrics.HubMetrics
	Preprocess *metrics.PreprocessMetrics
	Training   *metrics.TrainingMetrics
	Evaluation *metrics.EvaluationMetrics
}

// NewMetrics creates a private registry and registers every collector on it.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	hubMetrics, err := metrics.NewHubMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create hub metrics: %w", err)
	}

	preprocessMetrics, err := metrics.NewPreprocessMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create preprocess metrics: %w", err)
	}

	trainingMetrics, err := metrics.NewTrainingMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create training metrics: %w", err)
	}

	evaluationMetrics, err := metrics.NewEvaluationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Hub:        hubMetrics,
		Preprocess: preprocessMetrics,
		Training:   trainingMetrics,
		Evaluation: evaluationMetrics,
	}, nil
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric in node-exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	GetLogger().Debug("metrics written", logger.String("path", path))
	return nil
}

// GetLogger returns the observability logger
func GetLogger() logger.Logger {
	return logger.Global().Module("metrics")
}
