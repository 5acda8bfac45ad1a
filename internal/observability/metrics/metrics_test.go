package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderImplementations(t *testing.T) {
	registry := prometheus.NewRegistry()

	hub, err := NewHubMetrics(registry)
	require.NoError(t, err)
	pre, err := NewPreprocessMetrics(registry)
	require.NoError(t, err)
	train, err := NewTrainingMetrics(registry)
	require.NoError(t, err)
	eval, err := NewEvaluationMetrics(registry)
	require.NoError(t, err)

	for _, r := range []Recorder{hub, pre, train, eval, OrNoop(nil)} {
		r.RecordOperation(OpDownload, StatusSuccess)
		r.RecordDuration(OpDownload, 0.2)
		r.RecordError(OpDownload, "network")
	}

	assert.InDelta(t, 1, testutil.ToFloat64(hub.operationsTotal.WithLabelValues(OpDownload, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pre.errorsTotal.WithLabelValues(OpDownload, "network")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(train.operationDuration))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewHubMetrics(registry)
	require.NoError(t, err)
	_, err = NewHubMetrics(registry)
	require.Error(t, err)
}

func TestHubMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewHubMetrics(registry)
	require.NoError(t, err)

	m.RecordFile("train", StatusSuccess)
	m.RecordFile("train", StatusSuccess)
	m.RecordFile("test", StatusSkipped)
	m.AddBytes(2048)

	assert.InDelta(t, 2, testutil.ToFloat64(m.filesTotal.WithLabelValues("train", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.filesTotal.WithLabelValues("test", StatusSkipped)), 0)

	expected := `
# HELP bioacoustics_hub_downloaded_bytes_total Bytes written by the downloader
# TYPE bioacoustics_hub_downloaded_bytes_total counter
bioacoustics_hub_downloaded_bytes_total 2048
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "bioacoustics_hub_downloaded_bytes_total"))
}

func TestPreprocessMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewPreprocessMetrics(registry)
	require.NoError(t, err)

	m.ClassStarted()
	m.RecordInput("wolf")
	m.RecordOutput("wolf", 6)
	m.RecordOutput("wolf", 6)

	assert.InDelta(t, 1, testutil.ToFloat64(m.classesInFlight), 0)
	m.ClassFinished()
	assert.InDelta(t, 0, testutil.ToFloat64(m.classesInFlight), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.segmentsTotal.WithLabelValues("wolf")), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(m.audioSeconds.WithLabelValues("wolf")), 0)
}

func TestTrainingAndEvaluationMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	train, err := NewTrainingMetrics(registry)
	require.NoError(t, err)
	eval, err := NewEvaluationMetrics(registry)
	require.NoError(t, err)

	train.RecordEpoch("birdnet", "softmax", 0.9)
	train.RecordEpoch("birdnet", "softmax", 0.4)
	train.SetAccuracy("birdnet", "softmax", 0.75)
	train.RecordCacheLookup(true)
	train.RecordCacheLookup(false)
	train.RecordCacheLookup(false)

	assert.InDelta(t, 2, testutil.ToFloat64(train.epochsTotal.WithLabelValues("birdnet", "softmax")), 0)
	assert.InDelta(t, 0.4, testutil.ToFloat64(train.lossGauge.WithLabelValues("birdnet", "softmax")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(train.cacheHitsTotal.WithLabelValues("miss")), 0)

	eval.RecordPrediction(true)
	eval.RecordPrediction(false)
	eval.SetResult("ast", "centroid", 0.5, 0.4)
	eval.SetGameScore(0.8)

	assert.InDelta(t, 1, testutil.ToFloat64(eval.samplesTotal.WithLabelValues("true")), 0)
	assert.InDelta(t, 0.5, testutil.ToFloat64(eval.accuracyGauge.WithLabelValues("ast", "centroid")), 1e-9)
	assert.InDelta(t, 0.8, testutil.ToFloat64(eval.gameScoreGauge), 1e-9)
}
