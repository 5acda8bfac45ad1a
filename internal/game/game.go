// Package game runs the listening game: the player hears unlabeled clips
// from a few classes and sorts them into zones, then the grouping is scored
// against the truth.
package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
	"github.com/wolfhowl/bioacoustics/internal/playback"
)

var (
	// ErrTooFewClips is returned when a class cannot fill a round
	ErrTooFewClips = errors.NewStd("class has too few clips")
	// ErrUnknownClip is returned for a display name not in the round
	ErrUnknownClip = errors.NewStd("unknown clip")
	// ErrUnknownZone is returned for a zone label not in the round
	ErrUnknownZone = errors.NewStd("unknown zone")
)

// Options configure a session
type Options struct {
	Root            string   // directory holding one subdirectory per class
	Classes         []string // in zone order
	SamplesPerClass int
	TempDir         string // parent of the round directory; empty uses os.TempDir
	Seed            uint64 // 0 picks a random seed
}

// OptionsFromSettings builds Options for a test directory.
func OptionsFromSettings(root string, s *conf.GameSettings) Options {
	return Options{
		Root:            root,
		Classes:         slices.Clone(s.Classes),
		SamplesPerClass: s.SamplesPerClass,
		TempDir:         s.TempDir,
	}
}

func (o Options) validate() error {
	var problems []string
	if o.Root == "" {
		problems = append(problems, "root directory is empty")
	}
	if len(o.Classes) < 2 {
		problems = append(problems, "at least two classes are needed")
	}
	if len(o.Classes) > conf.MaxGameClasses {
		problems = append(problems, fmt.Sprintf("at most %d classes are supported", conf.MaxGameClasses))
	}
	seen := make(map[string]bool, len(o.Classes))
	for _, c := range o.Classes {
		if seen[c] {
			problems = append(problems, fmt.Sprintf("class %q listed twice", c))
		}
		seen[c] = true
	}
	if o.SamplesPerClass < 1 {
		problems = append(problems, "samples per class must be at least 1")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid game options: %s", strings.Join(problems, "; ")).
		Component("game").
		Category(errors.CategoryValidation).
		Build()
}

// Clip is one entry of a round as the player sees it.
type Clip struct {
	Name string // display name, "1".."N"
	File string // path of the copy in the round directory
	Zone string // assigned zone, empty if unassigned
}

// Result is the outcome of Validate.
type Result struct {
	Correct int
	Total   int
	Score   float64           // Correct/Total
	Truth   map[string]string // display name -> true zone
}

// Session holds one round at a time. It is not safe for concurrent use.
type Session struct {
	opts    Options
	rng     *rand.Rand
	player  playback.Player
	metrics *metrics.EvaluationMetrics
	logger  logger.Logger

	dir         string
	order       []string          // display names in presentation order
	files       map[string]string // display name -> copied file
	truth       map[string]string // display name -> true zone
	assignments map[string]string // display name -> chosen zone
}

// New prepares the first round. player and m may be nil.
func New(opts Options, player playback.Player, m *metrics.EvaluationMetrics) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if player == nil {
		player = playback.NoopPlayer{}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	s := &Session{
		opts:    opts,
		rng:     rand.New(rand.NewPCG(seed, seed)),
		player:  player,
		metrics: m,
		logger:  GetLogger(),
	}
	if err := s.prepare(); err != nil {
		_ = s.cleanup()
		return nil, err
	}
	return s, nil
}

// Zones returns the zone labels, one per class.
func (s *Session) Zones() []string {
	zones := make([]string, len(s.opts.Classes))
	for i := range zones {
		zones[i] = zoneLabel(i)
	}
	return zones
}

// Clips returns the round in presentation order.
func (s *Session) Clips() []Clip {
	clips := make([]Clip, 0, len(s.order))
	for _, name := range s.order {
		clips = append(clips, Clip{Name: name, File: s.files[name], Zone: s.assignments[name]})
	}
	return clips
}

// Dir returns the round directory.
func (s *Session) Dir() string {
	return s.dir
}

// Play plays the clip with the given display name.
func (s *Session) Play(ctx context.Context, name string) error {
	path, ok := s.files[name]
	if !ok {
		return s.unknown(ErrUnknownClip, name)
	}
	clip, err := myaudio.ReadFile(path)
	if err != nil {
		return err
	}
	return s.player.Play(ctx, clip)
}

// Assign puts a clip into a zone, replacing any earlier choice.
func (s *Session) Assign(name, zone string) error {
	if _, ok := s.files[name]; !ok {
		return s.unknown(ErrUnknownClip, name)
	}
	zone = strings.ToUpper(zone)
	if !slices.Contains(s.Zones(), zone) {
		return s.unknown(ErrUnknownZone, zone)
	}
	s.assignments[name] = zone
	return nil
}

// Unassign takes a clip out of its zone.
func (s *Session) Unassign(name string) error {
	if _, ok := s.files[name]; !ok {
		return s.unknown(ErrUnknownClip, name)
	}
	delete(s.assignments, name)
	return nil
}

// Validate scores the current grouping. A grouping that is a relabelling
// of the truth scores 1; unassigned clips count as wrong.
func (s *Session) Validate() Result {
	n := len(s.opts.Classes)
	counts := make([][]int, n)
	for i := range counts {
		counts[i] = make([]int, n)
	}
	for name, zone := range s.assignments {
		counts[zoneIndex(zone)][zoneIndex(s.truth[name])]++
	}

	res := Result{
		Correct: bestGrouping(counts),
		Total:   len(s.truth),
		Truth:   make(map[string]string, len(s.truth)),
	}
	for name, zone := range s.truth {
		res.Truth[name] = zone
	}
	if res.Total > 0 {
		res.Score = float64(res.Correct) / float64(res.Total)
	}

	if s.metrics != nil {
		s.metrics.SetGameScore(res.Score)
	}
	s.logger.Info("round validated",
		logger.Int("correct", res.Correct),
		logger.Int("total", res.Total),
		logger.Float64("score", res.Score))
	return res
}

// Reset discards the round and prepares a new one.
func (s *Session) Reset() error {
	if err := s.cleanup(); err != nil {
		return err
	}
	return s.prepare()
}

// Close removes the round directory and releases the player.
func (s *Session) Close() error {
	return errors.Join(s.cleanup(), s.player.Close())
}

func (s *Session) prepare() error {
	start := time.Now()
	pools := make([][]string, len(s.opts.Classes))
	for i, class := range s.opts.Classes {
		files, err := s.classFiles(class)
		if err != nil {
			return err
		}
		pools[i] = files
	}

	dir, err := os.MkdirTemp(s.opts.TempDir, "bioacoustics-game-*")
	if err != nil {
		return errors.New(err).
			Component("game").
			Category(errors.CategoryFileIO).
			FileContext(s.opts.TempDir, 0).
			Build()
	}
	s.dir = dir

	total := len(s.opts.Classes) * s.opts.SamplesPerClass
	names := make([]string, total)
	for i := range names {
		names[i] = strconv.Itoa(i + 1)
	}
	s.rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	s.files = make(map[string]string, total)
	s.truth = make(map[string]string, total)
	s.assignments = make(map[string]string, total)
	s.order = s.order[:0]

	counter := 0
	for i, pool := range pools {
		for _, src := range pool[:s.opts.SamplesPerClass] {
			counter++
			dst := filepath.Join(dir, strconv.Itoa(counter)+".wav")
			if err := dataset.CopyFile(src, dst); err != nil {
				return copyError(err, src)
			}
			name := names[counter-1]
			s.files[name] = dst
			s.truth[name] = zoneLabel(i)
			s.order = append(s.order, name)
		}
	}
	s.rng.Shuffle(len(s.order), func(i, j int) { s.order[i], s.order[j] = s.order[j], s.order[i] })

	s.logger.Debug("round prepared",
		logger.String("dir", dir),
		logger.Int("clips", total),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// classFiles returns the class's WAV files in random order, at least
// SamplesPerClass of them.
func (s *Session) classFiles(class string) ([]string, error) {
	classDir := filepath.Join(s.opts.Root, class)
	entries, err := os.ReadDir(classDir)
	if err != nil {
		return nil, errors.New(err).
			Component("game").
			Category(errors.CategoryFileIO).
			FileContext(classDir, 0).
			Build()
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			files = append(files, filepath.Join(classDir, e.Name()))
		}
	}
	if len(files) < s.opts.SamplesPerClass {
		return nil, errors.New(fmt.Errorf("%w: %s has %d, %d requested",
			ErrTooFewClips, class, len(files), s.opts.SamplesPerClass)).
			Component("game").
			Category(errors.CategoryDataset).
			Build()
	}
	s.rng.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
	return files, nil
}

func (s *Session) cleanup() error {
	if s.dir == "" {
		return nil
	}
	dir := s.dir
	s.dir = ""
	if err := os.RemoveAll(dir); err != nil {
		return errors.New(err).
			Component("game").
			Category(errors.CategoryFileIO).
			FileContext(dir, 0).
			Build()
	}
	return nil
}

func (s *Session) unknown(sentinel error, name string) error {
	return errors.New(fmt.Errorf("%w: %q", sentinel, name)).
		Component("game").
		Category(errors.CategoryValidation).
		Build()
}

func copyError(err error, path string) error {
	return errors.New(err).
		Component("game").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Build()
}

func zoneLabel(i int) string {
	return string(rune('A' + i))
}

func zoneIndex(zone string) int {
	return int(zone[0] - 'A')
}

// GetLogger returns the game logger
func GetLogger() logger.Logger {
	return logger.Global().Module("game")
}
