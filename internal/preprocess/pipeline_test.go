package preprocess

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func baseSettings() conf.PreprocessSettings {
	return conf.PreprocessSettings{
		TargetRate:    16000,
		Mono:          true,
		BitDepth:      16,
		Workers:       2,
		SkipUnchanged: true,
		Normalize:     conf.NormalizeSettings{Mode: conf.NormalizeNone},
		Assemble:      conf.AssembleSettings{SegmentLength: 1},
	}
}

func writeTone(t *testing.T, path string, rate, channels int, seconds float64) {
	t.Helper()
	clip := &myaudio.Clip{SampleRate: rate}
	n := int(seconds * float64(rate))
	for ch := range channels {
		s := make([]float32, n)
		for i := range s {
			s[i] = float32((i+ch)%100) / 200
		}
		clip.Channels = append(clip.Channels, s)
	}
	require.NoError(t, myaudio.WriteWAV(path, clip, 16))
}

func TestRunResamplesAndConvertsEveryRecording(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	for _, split := range []string{conf.SplitTrain, conf.SplitTest} {
		for _, class := range []string{"wolf", "dog"} {
			for i := range 2 {
				writeTone(t, filepath.Join(in, split, class, fmt.Sprintf("%d.wav", i)), 22050, 2, 0.3)
			}
		}
	}

	m, err := metrics.NewPreprocessMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	summary, err := New(baseSettings(), m).Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Inputs)
	assert.Equal(t, 8, summary.Outputs)
	assert.Equal(t, 4, summary.Classes)
	assert.False(t, summary.Skipped)

	ds, err := dataset.Scan(context.Background(), out, dataset.ScanOptions{ReadInfo: true})
	require.NoError(t, err)
	require.Len(t, ds.Recordings, 8)
	for _, r := range ds.Recordings {
		assert.Equal(t, 16000, r.Info.SampleRate, r.Path)
		assert.Equal(t, 1, r.Info.NumChannels, r.Path)
		assert.Equal(t, 16, r.Info.BitDepth, r.Path)
	}
	assert.Equal(t, []string{"dog", "wolf"}, ds.Classes(conf.SplitTest))
}

func TestRunIsIdempotent(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeTone(t, filepath.Join(in, "wolf", "a.wav"), 8000, 1, 0.2)

	settings := baseSettings()
	first, err := New(settings, nil).Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := New(settings, nil).Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	settings.Normalize.Mode = conf.NormalizePeak
	settings.Normalize.PeakDBFS = -3
	third, err := New(settings, nil).Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)

	clip, err := myaudio.ReadFile(filepath.Join(out, "wolf", "a.wav"))
	require.NoError(t, err)
	assert.InDelta(t, myaudio.DBFSToAmplitude(-3), myaudio.Peak(clip), 1e-3)
}

func TestRunAssemblesSegments(t *testing.T) {
	tests := []struct {
		name          string
		keepRemaining bool
		want          int
	}{
		{"drop remainder", false, 2},
		{"keep remainder", true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := t.TempDir(), t.TempDir()
			writeTone(t, filepath.Join(in, "wolf", "a.wav"), 8000, 1, 1)
			writeTone(t, filepath.Join(in, "wolf", "b.wav"), 8000, 1, 0.75)
			writeTone(t, filepath.Join(in, "wolf", "c.wav"), 8000, 1, 0.75)

			settings := baseSettings()
			settings.TargetRate = 0
			settings.Assemble.Enabled = true
			settings.Assemble.KeepRemaining = tt.keepRemaining

			summary, err := New(settings, nil).Run(context.Background(), in, out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, summary.Outputs)

			for i := 1; i <= tt.want; i++ {
				info, err := myaudio.ReadInfo(filepath.Join(out, "wolf", fmt.Sprintf("combined_%d.wav", i)))
				require.NoError(t, err)
				assert.Equal(t, 8000, info.TotalSamples)
			}
		})
	}
}

func TestRunRejectsMixedRatesWithoutResampling(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeTone(t, filepath.Join(in, "wolf", "a.wav"), 8000, 1, 0.5)
	writeTone(t, filepath.Join(in, "wolf", "b.wav"), 16000, 1, 0.5)

	settings := baseSettings()
	settings.TargetRate = 0
	settings.Assemble.Enabled = true

	_, err := New(settings, nil).Run(context.Background(), in, out)
	require.ErrorIs(t, err, ErrMixedSampleRates)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	// resampling makes the class consistent
	settings.TargetRate = 8000
	_, err = New(settings, nil).Run(context.Background(), in, out)
	require.NoError(t, err)
}

func TestRunDetectsOutputCollision(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeTone(t, filepath.Join(in, "wolf", "a.wav"), 8000, 1, 0.1)
	writeTone(t, filepath.Join(in, "wolf", "a.WAV"), 8000, 1, 0.1)

	_, err := New(baseSettings(), nil).Run(context.Background(), in, out)
	require.ErrorIs(t, err, ErrOutputCollision)
}

func TestRunGuards(t *testing.T) {
	in := t.TempDir()
	writeTone(t, filepath.Join(in, "wolf", "a.wav"), 8000, 1, 0.1)

	_, err := New(baseSettings(), nil).Run(context.Background(), in, in)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	out := t.TempDir()
	lock := flock.New(filepath.Join(out, lockFile))
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	_, err = New(baseSettings(), nil).Run(context.Background(), in, out)
	require.ErrorIs(t, err, ErrLocked)
	require.NoError(t, lock.Unlock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(baseSettings(), nil).Run(ctx, in, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)

	_, err = New(baseSettings(), nil).Run(context.Background(), t.TempDir(), t.TempDir())
	require.ErrorIs(t, err, dataset.ErrEmptyDataset)
}

func TestRunAssembledSplitsDoNotShareNames(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	for _, split := range []string{conf.SplitTrain, conf.SplitTest} {
		for _, class := range []string{"wolf", "dog"} {
			writeTone(t, filepath.Join(in, split, class, split+"-a.wav"), 8000, 1, 1)
			writeTone(t, filepath.Join(in, split, class, split+"-b.wav"), 8000, 1, 1)
		}
	}

	settings := baseSettings()
	settings.TargetRate = 0
	settings.Assemble.Enabled = true

	summary, err := New(settings, nil).Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Outputs)
	assert.FileExists(t, filepath.Join(out, conf.SplitTrain, "wolf", "combined_train_1.wav"))
	assert.FileExists(t, filepath.Join(out, conf.SplitTest, "wolf", "combined_test_2.wav"))

	ds, err := dataset.Scan(context.Background(), out, dataset.ScanOptions{ReadInfo: true})
	require.NoError(t, err)
	_, err = dataset.Check(context.Background(), ds, dataset.CheckOptions{SampleRate: 8000})
	require.NoError(t, err)
}

func TestRunSkipsRecordingsTrimmedToNothing(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeTone(t, filepath.Join(in, "wolf", "a.wav"), 8000, 1, 0.5)
	require.NoError(t, myaudio.WriteWAV(filepath.Join(in, "wolf", "b.wav"),
		myaudio.NewMonoClip(make([]float32, 4000), 8000), 16))

	settings := baseSettings()
	settings.TargetRate = 0
	settings.Trim.Silence = true
	settings.Trim.ThresholdDB = -60

	summary, err := New(settings, nil).Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inputs)
	assert.Equal(t, 1, summary.Outputs)
	assert.FileExists(t, filepath.Join(out, "wolf", "a.wav"))
	assert.NoFileExists(t, filepath.Join(out, "wolf", "b.wav"))

	m, err := loadManifest(out)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("wolf", "a.wav")}, m.Outputs)
}
