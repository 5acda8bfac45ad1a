package metrics

import "github.com/prometheus/client_golang/prometheus"

// TrainingMetrics tracks feature extraction and head training
type TrainingMetrics struct {
	operationMetrics

	lossGauge      *prometheus.GaugeVec
	accuracyGauge  *prometheus.GaugeVec
	epochsTotal    *prometheus.CounterVec
	cacheHitsTotal *prometheus.CounterVec
}

// NewTrainingMetrics creates and registers training metrics
func NewTrainingMetrics(registry *prometheus.Registry) (*TrainingMetrics, error) {
	m := &TrainingMetrics{
		operationMetrics: newOperationMetrics("train", prometheus.ExponentialBuckets(0.001, 2, 16)), // 1ms to ~30s
		lossGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "train",
				Name:      "loss",
				Help:      "Training loss after the latest epoch",
			},
			[]string{"family", "head"},
		),
		accuracyGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "train",
				Name:      "accuracy_ratio",
				Help:      "Training set accuracy (0.0 to 1.0)",
			},
			[]string{"family", "head"},
		),
		epochsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "train",
				Name:      "epochs_total",
				Help:      "Completed training epochs",
			},
			[]string{"family", "head"},
		),
		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "train",
				Name:      "feature_cache_total",
				Help:      "Feature cache lookups by result",
			},
			[]string{"result"}, // hit, miss
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordEpoch records the loss after an epoch
func (m *TrainingMetrics) RecordEpoch(family, head string, loss float64) {
	m.epochsTotal.WithLabelValues(family, head).Inc()
	m.lossGauge.WithLabelValues(family, head).Set(loss)
}

// SetAccuracy sets the final training accuracy
func (m *TrainingMetrics) SetAccuracy(family, head string, accuracy float64) {
	m.accuracyGauge.WithLabelValues(family, head).Set(accuracy)
}

// RecordCacheLookup counts a feature cache hit or miss
func (m *TrainingMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheHitsTotal.WithLabelValues(result).Inc()
}

// Describe implements the Collector interface
func (m *TrainingMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.describe(ch)
	m.lossGauge.Describe(ch)
	m.accuracyGauge.Describe(ch)
	m.epochsTotal.Describe(ch)
	m.cacheHitsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *TrainingMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collect(ch)
	m.lossGauge.Collect(ch)
	m.accuracyGauge.Collect(ch)
	m.epochsTotal.Collect(ch)
	m.cacheHitsTotal.Collect(ch)
}
