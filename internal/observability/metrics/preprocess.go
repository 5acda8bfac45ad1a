package metrics

import "github.com/prometheus/client_golang/prometheus"

// PreprocessMetrics tracks the preprocessing pipeline
type PreprocessMetrics struct {
	operationMetrics

	filesTotal      *prometheus.CounterVec
	segmentsTotal   *prometheus.CounterVec
	audioSeconds    *prometheus.CounterVec
	classesInFlight prometheus.Gauge
}

// NewPreprocessMetrics creates and registers preprocessing metrics
func NewPreprocessMetrics(registry *prometheus.Registry) (*PreprocessMetrics, error) {
	m := &PreprocessMetrics{
		operationMetrics: newOperationMetrics("preprocess", prometheus.ExponentialBuckets(0.001, 2, 14)), // 1ms to ~8s
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "preprocess",
				Name:      "files_total",
				Help:      "Recordings read by the pipeline",
			},
			[]string{"class"},
		),
		segmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "preprocess",
				Name:      "outputs_total",
				Help:      "Recordings written by the pipeline",
			},
			[]string{"class"},
		),
		audioSeconds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "preprocess",
				Name:      "audio_seconds_total",
				Help:      "Seconds of audio written",
			},
			[]string{"class"},
		),
		classesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "preprocess",
				Name:      "classes_in_flight",
				Help:      "Classes currently being processed",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordInput counts a recording read for class
func (m *PreprocessMetrics) RecordInput(class string) {
	m.filesTotal.WithLabelValues(class).Inc()
}

// RecordOutput counts a recording written for class
func (m *PreprocessMetrics) RecordOutput(class string, seconds float64) {
	m.segmentsTotal.WithLabelValues(class).Inc()
	m.audioSeconds.WithLabelValues(class).Add(seconds)
}

// ClassStarted and ClassFinished bracket the work on one class
func (m *PreprocessMetrics) ClassStarted()  { m.classesInFlight.Inc() }
func (m *PreprocessMetrics) ClassFinished() { m.classesInFlight.Dec() }

// Describe implements the Collector interface
func (m *PreprocessMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.describe(ch)
	m.filesTotal.Describe(ch)
	m.segmentsTotal.Describe(ch)
	m.audioSeconds.Describe(ch)
	m.classesInFlight.Describe(ch)
}

// Collect implements the Collector interface
func (m *PreprocessMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collect(ch)
	m.filesTotal.Collect(ch)
	m.segmentsTotal.Collect(ch)
	m.audioSeconds.Collect(ch)
	m.classesInFlight.Collect(ch)
}
