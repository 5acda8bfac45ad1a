package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics tracks dataset downloads
type HubMetrics struct {
	operationMetrics

	filesTotal *prometheus.CounterVec
	bytesTotal prometheus.Counter
}

// NewHubMetrics creates and registers hub metrics
func NewHubMetrics(registry *prometheus.Registry) (*HubMetrics, error) {
	m := &HubMetrics{
		operationMetrics: newOperationMetrics("hub", prometheus.ExponentialBuckets(0.05, 2, 12)), // 50ms to ~100s
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "hub",
				Name:      "files_total",
				Help:      "Files handled by the downloader by outcome",
			},
			[]string{"split", "status"}, // status: success, skipped, error
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "hub",
				Name:      "downloaded_bytes_total",
				Help:      "Bytes written by the downloader",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordFile counts a handled file
func (m *HubMetrics) RecordFile(split, status string) {
	m.filesTotal.WithLabelValues(split, status).Inc()
}

// AddBytes adds downloaded bytes
func (m *HubMetrics) AddBytes(n int64) {
	m.bytesTotal.Add(float64(n))
}

// Describe implements the Collector interface
func (m *HubMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.describe(ch)
	m.filesTotal.Describe(ch)
	m.bytesTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *HubMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collect(ch)
	m.filesTotal.Collect(ch)
	m.bytesTotal.Collect(ch)
}
