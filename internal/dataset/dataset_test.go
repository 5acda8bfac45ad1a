package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
)

// writeClip writes a short WAV whose content depends on seed.
func writeClip(t *testing.T, path string, rate int, seed int) {
	t.Helper()
	samples := make([]float32, rate/10)
	for i := range samples {
		samples[i] = float32((i*(seed+1))%200-100) / 200
	}
	require.NoError(t, myaudio.WriteWAV(path, myaudio.NewMonoClip(samples, rate), 16))
}

// makeFlat builds <dir>/<class>/<n>.wav with the given count per class.
func makeFlat(t *testing.T, dir string, counts map[string]int) {
	t.Helper()
	seed := 0
	for class, n := range counts {
		for i := range n {
			writeClip(t, filepath.Join(dir, class, fmt.Sprintf("%03d.wav", i)), 8000, seed)
			seed++
		}
	}
}

func TestScan(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	makeFlat(t, filepath.Join(root, conf.SplitTrain), map[string]int{"wolf": 2, "dog": 1})
	makeFlat(t, filepath.Join(root, conf.SplitTest), map[string]int{"wolf": 1})
	require.NoError(t, os.WriteFile(filepath.Join(root, conf.SplitTrain, "wolf", "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, conf.SplitTrain, "wolf", ".hidden.wav"), []byte("x"), 0o600))

	ds, err := Scan(context.Background(), root, ScanOptions{ReadInfo: true})
	require.NoError(t, err)

	assert.Len(t, ds.Recordings, 4)
	assert.Equal(t, []string{"dog", "wolf"}, ds.Classes(conf.SplitTrain))
	assert.Equal(t, []string{"wolf"}, ds.Classes(conf.SplitTest))
	assert.Len(t, ds.ByClass(conf.SplitTrain)["wolf"], 2)

	train := ds.Split(conf.SplitTrain)
	assert.Equal(t, "dog", train[0].Class)
	assert.Equal(t, "wolf/000.wav", train[1].ID())
	assert.Equal(t, 8000, train[1].Info.SampleRate)
}

func TestScanUnsplitAndNormalizesLabels(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeClip(t, filepath.Join(root, "e\u0301tourneau", "a.wav"), 8000, 1)

	ds, err := Scan(context.Background(), root, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, ds.Recordings, 1)
	assert.Equal(t, "\u00e9tourneau", ds.Recordings[0].Class)
	assert.Empty(t, ds.Recordings[0].Split)
}

func TestScanCancelled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	makeFlat(t, root, map[string]int{"wolf": 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, root, ScanOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestSplitIsSeededAndDisjoint(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	makeFlat(t, in, map[string]int{"wolf": 10, "dog": 7})

	opts := SplitOptions{TrainRatio: 0.8, Seed: 42}
	outA, outB := t.TempDir(), t.TempDir()

	res, err := Split(context.Background(), in, outA, opts)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"wolf": 8, "dog": 5}, res.Train)
	assert.Equal(t, map[string]int{"wolf": 2, "dog": 2}, res.Test)

	_, err = Split(context.Background(), in, outB, opts)
	require.NoError(t, err)

	dsA, err := Scan(context.Background(), outA, ScanOptions{})
	require.NoError(t, err)
	dsB, err := Scan(context.Background(), outB, ScanOptions{})
	require.NoError(t, err)

	idsOf := func(ds *Dataset, split string) []string {
		var ids []string
		for _, r := range ds.Split(split) {
			ids = append(ids, r.ID())
		}
		return ids
	}
	assert.Equal(t, idsOf(dsA, conf.SplitTest), idsOf(dsB, conf.SplitTest), "same seed must give same partition")

	report, err := Check(context.Background(), dsA, CheckOptions{ContentHash: true})
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}

func TestSplitRejectsBadRatio(t *testing.T) {
	t.Parallel()

	for _, ratio := range []float64{0, 1, -0.5, 1.5} {
		_, err := Split(context.Background(), t.TempDir(), t.TempDir(), SplitOptions{TrainRatio: ratio})
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}

	_, err := Split(context.Background(), t.TempDir(), t.TempDir(), SplitOptions{TrainRatio: 0.5})
	require.ErrorIs(t, err, ErrEmptyDataset)
}

func TestPrune(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	makeFlat(t, filepath.Join(root, conf.SplitTrain), map[string]int{"a": 3, "b": 1, "c": 3, "d": 3})
	makeFlat(t, filepath.Join(root, conf.SplitTest), map[string]int{"a": 2, "b": 2, "c": 1})

	res, err := Prune(root, PruneOptions{MinFiles: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Kept)
	assert.Equal(t, []string{"b", "c", "d"}, res.Removed)
	assert.Nil(t, res.Renamed)

	for _, split := range []string{conf.SplitTrain, conf.SplitTest} {
		_, err := os.Stat(filepath.Join(root, split, "b"))
		assert.True(t, os.IsNotExist(err))
	}
	assert.DirExists(t, filepath.Join(root, conf.SplitTrain, "a"))
}

func TestPruneRenameUsesOneMapping(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	counts := map[string]int{"howl_2": 2, "alpha": 2, "zeta": 2}
	makeFlat(t, filepath.Join(root, conf.SplitTrain), counts)
	makeFlat(t, filepath.Join(root, conf.SplitTest), counts)

	res, err := Prune(root, PruneOptions{MinFiles: 1, Rename: true, BaseName: "howl"})
	require.NoError(t, err)
	want := map[string]string{"alpha": "howl_1", "howl_2": "howl_2", "zeta": "howl_3"}
	assert.Equal(t, want, res.Renamed)

	ds, err := Scan(context.Background(), root, ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"howl_1", "howl_2", "howl_3"}, ds.Classes(conf.SplitTrain))
	assert.Equal(t, ds.Classes(conf.SplitTrain), ds.Classes(conf.SplitTest))

	data, err := os.ReadFile(filepath.Join(root, ClassMapFile))
	require.NoError(t, err)
	var stored map[string]string
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, want, stored)
}

func TestCheckDetectsViolations(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeClip(t, filepath.Join(root, conf.SplitTrain, "wolf", "a.wav"), 8000, 1)
	writeClip(t, filepath.Join(root, conf.SplitTrain, "wolf", "b.wav"), 8000, 2)
	// same name in test
	writeClip(t, filepath.Join(root, conf.SplitTest, "wolf", "a.wav"), 8000, 3)
	// same bytes under another name
	writeClip(t, filepath.Join(root, conf.SplitTest, "wolf", "copy.wav"), 8000, 2)
	// unknown class at another rate
	writeClip(t, filepath.Join(root, conf.SplitTest, "fox", "c.wav"), 16000, 4)

	ds, err := Scan(context.Background(), root, ScanOptions{ReadInfo: true})
	require.NoError(t, err)

	report, err := Check(context.Background(), ds, CheckOptions{SampleRate: 8000, ContentHash: true})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrSplitLeakage)
	require.ErrorIs(t, err, ErrLabelClosure)
	require.ErrorIs(t, err, ErrSampleRate)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	kinds := make(map[error]int)
	for _, is := range report.Issues {
		kinds[is.Kind]++
	}
	assert.Equal(t, 2, kinds[ErrSplitLeakage])
	assert.Equal(t, 1, kinds[ErrLabelClosure])
	assert.Equal(t, 1, kinds[ErrSampleRate])
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	writeClip(t, src, 8000, 3)
	want, err := os.ReadFile(src)
	require.NoError(t, err)

	dst := filepath.Join(dir, "a", "b", "dst.wav")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, make([]byte, len(want)*2), 0o600))

	require.NoError(t, CopyFile(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, CopyFile(src, filepath.Join(dir, "new", "dst.wav")))
	assert.FileExists(t, filepath.Join(dir, "new", "dst.wav"))

	assert.Error(t, CopyFile(filepath.Join(dir, "missing.wav"), filepath.Join(dir, "x.wav")))
	assert.NoFileExists(t, filepath.Join(dir, "x.wav"))
}
