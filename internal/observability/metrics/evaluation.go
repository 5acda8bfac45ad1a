package metrics

import "github.com/prometheus/client_golang/prometheus"

// EvaluationMetrics tracks checkpoint evaluation and game rounds
type EvaluationMetrics struct {
	operationMetrics

	accuracyGauge  *prometheus.GaugeVec
	macroF1Gauge   *prometheus.GaugeVec
	samplesTotal   *prometheus.CounterVec
	gameScoreGauge prometheus.Gauge
}

// NewEvaluationMetrics creates and registers evaluation metrics
func NewEvaluationMetrics(registry *prometheus.Registry) (*EvaluationMetrics, error) {
	m := &EvaluationMetrics{
		operationMetrics: newOperationMetrics("evaluate", prometheus.ExponentialBuckets(0.001, 2, 16)),
		accuracyGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "evaluate",
				Name:      "accuracy_ratio",
				Help:      "Test set accuracy of the latest evaluation (0.0 to 1.0)",
			},
			[]string{"family", "head"},
		),
		macroF1Gauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "evaluate",
				Name:      "macro_f1_ratio",
				Help:      "Macro-averaged F1 of the latest evaluation",
			},
			[]string{"family", "head"},
		),
		samplesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "evaluate",
				Name:      "samples_total",
				Help:      "Evaluated recordings by correctness",
			},
			[]string{"correct"},
		),
		gameScoreGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "game",
				Name:      "score_ratio",
				Help:      "Score of the latest validated game round",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPrediction counts one evaluated recording
func (m *EvaluationMetrics) RecordPrediction(correct bool) {
	label := "false"
	if correct {
		label = "true"
	}
	m.samplesTotal.WithLabelValues(label).Inc()
}

// SetResult publishes the summary of a finished evaluation
func (m *EvaluationMetrics) SetResult(family, head string, accuracy, macroF1 float64) {
	m.accuracyGauge.WithLabelValues(family, head).Set(accuracy)
	m.macroF1Gauge.WithLabelValues(family, head).Set(macroF1)
}

// SetGameScore publishes a validated game round score
func (m *EvaluationMetrics) SetGameScore(score float64) {
	m.gameScoreGauge.Set(score)
}

// Describe implements the Collector interface
func (m *EvaluationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.describe(ch)
	m.accuracyGauge.Describe(ch)
	m.macroF1Gauge.Describe(ch)
	m.samplesTotal.Describe(ch)
	m.gameScoreGauge.Describe(ch)
}

// Collect implements the Collector interface
func (m *EvaluationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collect(ch)
	m.accuracyGauge.Collect(ch)
	m.macroF1Gauge.Collect(ch)
	m.samplesTotal.Collect(ch)
	m.gameScoreGauge.Collect(ch)
}
