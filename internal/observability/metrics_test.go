package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

func TestWriteTextfile(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Hub.RecordFile("train", metrics.StatusSuccess)
	m.Evaluation.SetResult("birdnet", "softmax", 0.9, 0.85)

	path := filepath.Join(t.TempDir(), "bioacoustics.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bioacoustics_hub_files_total{split="train",status="success"} 1`)
	assert.Contains(t, string(data), `bioacoustics_evaluate_accuracy_ratio{family="birdnet",head="softmax"} 0.9`)

	require.NoError(t, m.WriteTextfile(""))
}
