package metrics

import "github.com/prometheus/client_golang/prometheus"

// operationMetrics backs the Recorder methods of every stage collector.
type operationMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
}

func newOperationMetrics(subsystem string, buckets []float64) operationMetrics {
	return operationMetrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: subsystem,
				Name:      "operations_total",
				Help:      "Total number of operations by status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Time taken by operations",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors by type",
			},
			[]string{"operation", "error_type"},
		),
	}
}

// Namespace prefixes every metric name
const Namespace = "bioacoustics"

func (o *operationMetrics) RecordOperation(operation, status string) {
	o.operationsTotal.WithLabelValues(operation, status).Inc()
}

func (o *operationMetrics) RecordDuration(operation string, seconds float64) {
	o.operationDuration.WithLabelValues(operation).Observe(seconds)
}

func (o *operationMetrics) RecordError(operation, errorType string) {
	o.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

func (o *operationMetrics) describe(ch chan<- *prometheus.Desc) {
	o.operationsTotal.Describe(ch)
	o.operationDuration.Describe(ch)
	o.errorsTotal.Describe(ch)
}

func (o *operationMetrics) collect(ch chan<- prometheus.Metric) {
	o.operationsTotal.Collect(ch)
	o.operationDuration.Collect(ch)
	o.errorsTotal.Collect(ch)
}
