package game

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
	"github.com/wolfhowl/bioacoustics/internal/playback"
)

type recordingPlayer struct {
	played []int
	closed bool
}

func (p *recordingPlayer) Play(_ context.Context, clip *myaudio.Clip) error {
	p.played = append(p.played, clip.Len())
	return nil
}

func (p *recordingPlayer) Close() error {
	p.closed = true
	return nil
}

// testRoot writes n short clips for each class.
func testRoot(t *testing.T, n int, classes ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, class := range classes {
		dir := filepath.Join(root, class)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for i := range n {
			clip := myaudio.NewMonoClip(make([]float32, 480), 48000)
			require.NoError(t, myaudio.WriteWAV(filepath.Join(dir, "rec"+strconv.Itoa(i)+".wav"), clip, 16))
		}
		// ignored
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	}
	return root
}

func newSession(t *testing.T, player *recordingPlayer, m *metrics.EvaluationMetrics) *Session {
	t.Helper()
	opts := Options{
		Root:            testRoot(t, 4, "wolf_1", "wolf_2", "wolf_3"),
		Classes:         []string{"wolf_1", "wolf_2", "wolf_3"},
		SamplesPerClass: 3,
		TempDir:         t.TempDir(),
		Seed:            7,
	}
	var p playback.Player
	if player != nil {
		p = player
	}
	s, err := New(opts, p, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPrepare(t *testing.T) {
	t.Parallel()
	s := newSession(t, nil, nil)

	assert.Equal(t, []string{"A", "B", "C"}, s.Zones())

	clips := s.Clips()
	require.Len(t, clips, 9)
	names := make(map[string]bool)
	for _, c := range clips {
		names[c.Name] = true
		assert.FileExists(t, c.File)
		assert.Equal(t, s.Dir(), filepath.Dir(c.File))
		assert.Empty(t, c.Zone)
	}
	for i := 1; i <= 9; i++ {
		assert.True(t, names[strconv.Itoa(i)], "display name %d", i)
	}
	for i := 1; i <= 9; i++ {
		assert.FileExists(t, filepath.Join(s.Dir(), strconv.Itoa(i)+".wav"))
	}

	perZone := make(map[string]int)
	for _, z := range s.truth {
		perZone[z]++
	}
	assert.Equal(t, map[string]int{"A": 3, "B": 3, "C": 3}, perZone)
}

func TestTooFewClips(t *testing.T) {
	t.Parallel()

	_, err := New(Options{
		Root:            testRoot(t, 2, "a", "b"),
		Classes:         []string{"a", "b"},
		SamplesPerClass: 3,
		TempDir:         t.TempDir(),
	}, nil, nil)
	require.ErrorIs(t, err, ErrTooFewClips)
	assert.True(t, errors.IsCategory(err, errors.CategoryDataset))
}

func TestOptionsValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
	}{
		{"no root", Options{Classes: []string{"a", "b"}, SamplesPerClass: 1}},
		{"one class", Options{Root: "x", Classes: []string{"a"}, SamplesPerClass: 1}},
		{"duplicate class", Options{Root: "x", Classes: []string{"a", "a"}, SamplesPerClass: 1}},
		{"too many classes", Options{Root: "x", Classes: strings.Split("a,b,c,d,e,f,g,h,i", ","), SamplesPerClass: 1}},
		{"no samples", Options{Root: "x", Classes: []string{"a", "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.opts, nil, nil)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestRelabelledGroupingScoresFull(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewEvaluationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	s := newSession(t, nil, m)

	// rotate every true zone by one: A->B, B->C, C->A
	rotate := map[string]string{"A": "B", "B": "C", "C": "A"}
	for name, zone := range s.truth {
		require.NoError(t, s.Assign(name, strings.ToLower(rotate[zone])))
	}

	res := s.Validate()
	assert.Equal(t, 9, res.Correct)
	assert.Equal(t, 9, res.Total)
	assert.InDelta(t, 1.0, res.Score, 0)
	assert.Equal(t, s.truth, res.Truth)

	expected := `
# HELP bioacoustics_game_score_ratio Score of the latest validated game round
# TYPE bioacoustics_game_score_ratio gauge
bioacoustics_game_score_ratio 1
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "bioacoustics_game_score_ratio"))
}

func TestPartialGrouping(t *testing.T) {
	t.Parallel()
	s := newSession(t, nil, nil)

	// everything in one zone matches exactly one class
	for name := range s.truth {
		require.NoError(t, s.Assign(name, "A"))
	}
	res := s.Validate()
	assert.Equal(t, 3, res.Correct)
	assert.InDelta(t, 1.0/3, res.Score, 1e-12)

	// unassigned clips count as wrong
	for name := range s.truth {
		require.NoError(t, s.Unassign(name))
	}
	assert.Zero(t, s.Validate().Correct)
}

func TestUnknownNames(t *testing.T) {
	t.Parallel()
	s := newSession(t, nil, nil)

	require.ErrorIs(t, s.Assign("99", "A"), ErrUnknownClip)
	require.ErrorIs(t, s.Assign("1", "Z"), ErrUnknownZone)
	require.ErrorIs(t, s.Unassign("0"), ErrUnknownClip)
	require.ErrorIs(t, s.Play(context.Background(), "x"), ErrUnknownClip)
}

func TestPlayResetClose(t *testing.T) {
	t.Parallel()
	player := &recordingPlayer{}
	s := newSession(t, player, nil)

	require.NoError(t, s.Play(context.Background(), "1"))
	assert.Equal(t, []int{480}, player.played)

	require.NoError(t, s.Assign("1", "B"))
	old := s.Dir()
	require.NoError(t, s.Reset())
	assert.NoDirExists(t, old)
	assert.DirExists(t, s.Dir())
	assert.Len(t, s.Clips(), 9)
	for _, c := range s.Clips() {
		assert.Empty(t, c.Zone)
	}

	dir := s.Dir()
	require.NoError(t, s.Close())
	assert.NoDirExists(t, dir)
	assert.True(t, player.closed)
}

func TestBestGrouping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, bestGrouping(nil))
	assert.Equal(t, 5, bestGrouping([][]int{{0, 3}, {2, 1}}))
	assert.Equal(t, 7, bestGrouping([][]int{{1, 0, 2}, {0, 3, 0}, {2, 0, 1}}))
}
