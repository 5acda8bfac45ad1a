package evaluate

import (
	"bytes"
	"context"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/features"
	"github.com/wolfhowl/bioacoustics/internal/model"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

func samplePredictions() []Prediction {
	return []Prediction{
		{Path: "1", True: 0, Predicted: 0, TopK: []int{0, 1}},
		{Path: "2", True: 0, Predicted: 0, TopK: []int{0, 2}},
		{Path: "3", True: 0, Predicted: 1, TopK: []int{1, 0}},
		{Path: "4", True: 1, Predicted: 1, TopK: []int{1, 2}},
		{Path: "5", True: 2, Predicted: 1, TopK: []int{1, 0}},
	}
}

func TestCompute(t *testing.T) {
	t.Parallel()

	r, err := Compute([]string{"a", "b", "c"}, samplePredictions(), 2)
	require.NoError(t, err)

	assert.InDelta(t, 0.6, r.Accuracy, 1e-12)
	assert.InDelta(t, 0.8, r.TopKAccuracy, 1e-12)
	assert.Equal(t, [][]int{{2, 1, 0}, {0, 1, 0}, {0, 1, 0}}, r.Confusion)

	a, b, c := r.PerClass[0], r.PerClass[1], r.PerClass[2]
	assert.InDelta(t, 1.0, a.Precision, 1e-12)
	assert.InDelta(t, 2.0/3, a.Recall, 1e-12)
	assert.InDelta(t, 0.8, a.F1, 1e-12)
	assert.Equal(t, 3, a.Support)
	assert.InDelta(t, 1.0/3, b.Precision, 1e-12)
	assert.InDelta(t, 0.5, b.F1, 1e-12)
	assert.Zero(t, c.Precision)
	assert.Zero(t, c.F1)

	assert.InDelta(t, (1+1.0/3)/3, r.MacroPrecision, 1e-12)
	assert.InDelta(t, (2.0/3+1)/3, r.MacroRecall, 1e-12)
	assert.InDelta(t, 1.3/3, r.MacroF1, 1e-12)
}

func TestComputeSkipsAbsentClassesInMacro(t *testing.T) {
	t.Parallel()

	preds := []Prediction{{True: 0, Predicted: 0}, {True: 1, Predicted: 1}}
	r, err := Compute([]string{"a", "b", "unused"}, preds, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r.MacroF1, 1e-12)
	assert.Zero(t, r.PerClass[2].Support)
}

func TestComputeRejects(t *testing.T) {
	t.Parallel()

	_, err := Compute([]string{"a"}, nil, 1)
	require.Error(t, err)

	_, err = Compute([]string{"a"}, []Prediction{{True: 0, Predicted: 3}}, 1)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestValidateRanges(t *testing.T) {
	t.Parallel()

	r, err := Compute([]string{"a", "b", "c"}, samplePredictions(), 2)
	require.NoError(t, err)

	r.Accuracy = 1.2
	require.ErrorIs(t, r.Validate(), ErrInvalidReport)

	r.Accuracy = 0.6
	r.PerClass[1].F1 = math.NaN()
	require.ErrorIs(t, r.Validate(), ErrInvalidReport)

	r.PerClass[1].F1 = 0.5
	r.Samples = 7
	require.ErrorIs(t, r.Validate(), ErrInvalidReport)
}

func TestRenderers(t *testing.T) {
	t.Parallel()

	r, err := Compute([]string{"a", "b", "c"}, samplePredictions(), 2)
	require.NoError(t, err)
	r.Family, r.Head = conf.FamilyBirdNET, conf.HeadSoftmax

	tbl := RenderTable(r)
	assert.Contains(t, tbl, "macro avg")
	assert.Contains(t, tbl, "66.7%")
	assert.Contains(t, tbl, "birdnet/softmax")
	assert.Contains(t, RenderConfusion(r), "true \\ predicted")

	var buf bytes.Buffer
	require.NoError(t, WriteConfusionCSV(&buf, r))
	assert.Equal(t, "true\\predicted,a,b,c\na,2,1,0\nb,0,1,0\nc,0,1,0\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteHeatmap(&buf, r))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2*heatmapMargin+3*heatmapCell, img.Bounds().Dx())

	// row c is all "b", so its b cell is fully saturated
	x := heatmapMargin + heatmapCell + 1
	y := heatmapMargin + 2*heatmapCell + 1
	red, _, _, _ := img.At(x, y).RGBA()
	assert.Equal(t, uint32(8)<<8|8, red)

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteOutputs(dir, r)
	require.NoError(t, err)
	assert.Len(t, paths, 3)
	for _, p := range paths {
		assert.FileExists(t, p)
	}
}

func writeTone(t *testing.T, path string, freq float64) {
	t.Helper()
	s := make([]float32, 24000)
	for i := range s {
		s[i] = float32(0.4 * math.Sin(2*math.Pi*freq*float64(i)/48000))
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, myaudio.WriteWAV(path, myaudio.NewMonoClip(s, 48000), 16))
}

func toneCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	tones := map[string][]float64{"low": {400, 450, 500, 420}, "high": {4000, 4500, 5000, 4200}}
	for class, freqs := range tones {
		for i, f := range freqs {
			split := conf.SplitTrain
			if i == len(freqs)-1 {
				split = conf.SplitTest
			}
			writeTone(t, filepath.Join(root, split, class, string(rune('a'+i))+".wav"), f)
		}
	}
	return root
}

func TestEvaluateCorpus(t *testing.T) {
	t.Parallel()

	root := toneCorpus(t)
	ds, err := dataset.Scan(context.Background(), root, dataset.ScanOptions{})
	require.NoError(t, err)

	p, err := features.DefaultParams(conf.FamilyBirdNET)
	require.NoError(t, err)
	ex, err := features.NewExtractor(p, 1)
	require.NoError(t, err)
	cache := features.NewCache(0, nil)

	cp, err := model.NewTrainer(ex, cache, nil).Train(context.Background(), ds, model.Options{
		Family: conf.FamilyBirdNET,
		Head:   conf.HeadCentroid,
	})
	require.NoError(t, err)

	m, err := metrics.NewEvaluationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	ev, err := NewEvaluator(cp, ex, cache, m)
	require.NoError(t, err)

	report, preds, err := ev.Evaluate(context.Background(), ds, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Samples)
	assert.InDelta(t, 1.0, report.Accuracy, 0)
	assert.InDelta(t, 1.0, report.TopKAccuracy, 0)
	assert.Equal(t, root, report.Corpus)
	require.Len(t, preds, 2)
	assert.Less(t, preds[0].Path, preds[1].Path)

	expected := `
# HELP bioacoustics_evaluate_samples_total Evaluated recordings by correctness
# TYPE bioacoustics_evaluate_samples_total counter
bioacoustics_evaluate_samples_total{correct="true"} 2
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "bioacoustics_evaluate_samples_total"))

	// a test class the checkpoint never saw
	writeTone(t, filepath.Join(root, conf.SplitTest, "mid", "x.wav"), 1500)
	ds, err = dataset.Scan(context.Background(), root, dataset.ScanOptions{})
	require.NoError(t, err)
	_, _, err = ev.Evaluate(context.Background(), ds, 3)
	require.ErrorIs(t, err, ErrUnknownClass)
}

func TestNewEvaluatorChecksDim(t *testing.T) {
	t.Parallel()

	p, err := features.DefaultParams(conf.FamilyAST)
	require.NoError(t, err)
	ex, err := features.NewExtractor(p, 1)
	require.NoError(t, err)

	cp := &model.Checkpoint{Standardizer: model.Standardizer{Mean: make([]float64, 8), Std: make([]float64, 8)}}
	_, err = NewEvaluator(cp, ex, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
