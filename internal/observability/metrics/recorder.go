// Package metrics provides Prometheus collectors for the pipeline stages.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Pipeline packages depend on it rather than on concrete collectors.
type Recorder interface {
	// RecordOperation records an operation with its status (success or error).
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type.
	RecordError(operation, errorType string)
}

// NoopRecorder discards everything
type NoopRecorder struct{}

func (NoopRecorder) RecordOperation(string, string)  {}
func (NoopRecorder) RecordDuration(string, float64) {}
func (NoopRecorder) RecordError(string, string)     {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
