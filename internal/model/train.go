// Package model trains and applies classification heads on top of a
// feature front end.
package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/features"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

// ErrTooFewClasses is returned when the training split has fewer than two classes
var ErrTooFewClasses = errors.NewStd("training needs at least two classes")

// Options are the training hyperparameters
type Options struct {
	Family       string  `json:"family"`
	Head         string  `json:"head"`
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	L2           float64 `json:"l2"`
	Seed         uint64  `json:"seed"`
}

// OptionsFromSettings copies the configured defaults.
func OptionsFromSettings(s *conf.TrainSettings) Options {
	return Options{
		Family:       s.Family,
		Head:         s.Head,
		Epochs:       s.Epochs,
		LearningRate: s.LearningRate,
		BatchSize:    s.BatchSize,
		L2:           s.L2,
		Seed:         s.Seed,
	}
}

// Validate checks the hyperparameters.
func (o Options) Validate() error {
	var problems []string
	if o.Family != conf.FamilyBirdNET && o.Family != conf.FamilyAST {
		problems = append(problems, fmt.Sprintf("unknown family %q", o.Family))
	}
	switch o.Head {
	case conf.HeadCentroid:
	case conf.HeadSoftmax:
		if o.Epochs <= 0 {
			problems = append(problems, "epochs must be positive")
		}
		if o.LearningRate <= 0 {
			problems = append(problems, "learning rate must be positive")
		}
		if o.BatchSize <= 0 {
			problems = append(problems, "batch size must be positive")
		}
		if o.L2 < 0 {
			problems = append(problems, "l2 must not be negative")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown head %q", o.Head))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid training options: %v", problems).
		Component("model").
		Category(errors.CategoryValidation).
		Build()
}

// Sample is one labelled embedding
type Sample struct {
	X     []float64
	Class string
}

// Trainer fits heads on embeddings from one front end
type Trainer struct {
	extractor features.Extractor
	cache     *features.Cache
	metrics   *metrics.TrainingMetrics
	recorder  metrics.Recorder
	logger    logger.Logger
}

// NewTrainer creates a trainer. cache and m may be nil.
func NewTrainer(ex features.Extractor, cache *features.Cache, m *metrics.TrainingMetrics) *Trainer {
	t := &Trainer{
		extractor: ex,
		cache:     cache,
		metrics:   m,
		recorder:  metrics.NoopRecorder{},
		logger:    GetLogger(),
	}
	if m != nil {
		t.recorder = m
	}
	return t
}

// Train embeds the train split of ds in sorted order and fits a head.
func (t *Trainer) Train(ctx context.Context, ds *dataset.Dataset, opts Options) (*Checkpoint, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	params := t.extractor.Params()
	if params.Family != opts.Family {
		return nil, errors.Newf("front end family %s does not match training family %s", params.Family, opts.Family).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}

	recs := ds.Split(conf.SplitTrain)
	if len(recs) == 0 {
		return nil, errors.New(dataset.ErrEmptyDataset).
			Component("model").
			Category(errors.CategoryDataset).
			Context("root", ds.Root).
			Context("split", conf.SplitTrain).
			Build()
	}

	paths := make([]string, len(recs))
	for i, r := range recs {
		paths[i] = r.Path
	}
	start := time.Now()
	embs, err := t.cache.EmbedFiles(ctx, t.extractor, paths)
	if err != nil {
		return nil, err
	}
	t.logger.Info("embedded training split",
		logger.Int("recordings", len(recs)),
		logger.Int("dim", t.extractor.Dim()),
		logger.Duration("elapsed", time.Since(start)))

	samples := make([]Sample, len(recs))
	for i, r := range recs {
		samples[i] = Sample{X: embs[i], Class: r.Class}
	}
	cp, err := t.Fit(ctx, samples, opts)
	if err != nil {
		return nil, err
	}
	cp.Features = params
	return cp, nil
}

// Fit standardizes samples and trains the head named in opts.
func (t *Trainer) Fit(ctx context.Context, samples []Sample, opts Options) (*Checkpoint, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	classes := classList(samples)
	if len(classes) < 2 {
		return nil, errors.New(fmt.Errorf("%w: got %v", ErrTooFewClasses, classes)).
			Component("model").
			Category(errors.CategoryDataset).
			Build()
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	dim := len(samples[0].X)
	raw := make([][]float64, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		if len(s.X) != dim {
			return nil, errors.Newf("embedding %d has length %d, want %d", i, len(s.X), dim).
				Component("model").
				Category(errors.CategoryValidation).
				Build()
		}
		raw[i] = s.X
		y[i] = index[s.Class]
	}

	std := FitStandardizer(raw)
	x := make([][]float64, len(raw))
	for i, v := range raw {
		x[i] = std.Apply(v)
	}

	start := time.Now()
	cp := &Checkpoint{
		Version:      CheckpointVersion,
		Family:       opts.Family,
		Head:         opts.Head,
		Classes:      classes,
		Standardizer: std,
	}

	var loss float64
	switch opts.Head {
	case conf.HeadSoftmax:
		head, l, err := t.fitSoftmax(ctx, x, y, len(classes), opts)
		if err != nil {
			t.recorder.RecordError(metrics.OpTrain, string(errors.CategoryTraining))
			return nil, err
		}
		cp.Softmax, loss = head, l
	case conf.HeadCentroid:
		cp.Centroid = fitCentroid(x, y, len(classes))
	}

	correct := 0
	head := cp.head()
	for i, v := range x {
		if argmax(head.Scores(v)) == y[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(x))

	cp.Summary = Summary{
		Options:       opts,
		Samples:       len(samples),
		TrainAccuracy: accuracy,
		FinalLoss:     loss,
		TrainedAt:     time.Now().UTC(),
		Duration:      time.Since(start),
	}

	t.recorder.RecordOperation(metrics.OpTrain, metrics.StatusSuccess)
	t.recorder.RecordDuration(metrics.OpTrain, time.Since(start).Seconds())
	if t.metrics != nil {
		t.metrics.SetAccuracy(opts.Family, opts.Head, accuracy)
	}
	t.logger.Info("head trained",
		logger.String("family", opts.Family),
		logger.String("head", opts.Head),
		logger.Int("classes", len(classes)),
		logger.Int("samples", len(samples)),
		logger.Float64("train_accuracy", accuracy),
		logger.Float64("final_loss", loss))
	return cp, nil
}

// fitSoftmax runs mini-batch SGD with L2 regularization and returns the head
// and its final loss. Sample order is shuffled per epoch from opts.Seed.
func (t *Trainer) fitSoftmax(ctx context.Context, x [][]float64, y []int, classes int, opts Options) (*Softmax, float64, error) {
	dim := len(x[0])
	head := newSoftmax(classes, dim)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	gradW := make([][]float64, classes)
	for c := range gradW {
		gradW[c] = make([]float64, dim)
	}
	gradB := make([]float64, classes)

	var loss float64
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, errors.New(err).
				Component("model").
				Category(errors.CategoryCancellation).
				Context("epoch", epoch).
				Build()
		}
		epochStart := time.Now()
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for batch := range slices.Chunk(order, opts.BatchSize) {
			for c := range gradW {
				clear(gradW[c])
			}
			clear(gradB)
			for _, i := range batch {
				p := head.Scores(x[i])
				p[y[i]]--
				for c, g := range p {
					floats.AddScaled(gradW[c], g, x[i])
					gradB[c] += g
				}
			}
			scale := opts.LearningRate / float64(len(batch))
			for c, w := range head.Weights {
				floats.Scale(1-opts.LearningRate*opts.L2, w)
				floats.AddScaled(w, -scale, gradW[c])
				head.Bias[c] -= scale * gradB[c]
			}
		}

		loss = crossEntropy(head, x, y, opts.L2)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, 0, errors.Newf("training diverged at epoch %d", epoch).
				Component("model").
				Category(errors.CategoryTraining).
				Context("learning_rate", opts.LearningRate).
				Build()
		}
		t.recorder.RecordDuration(metrics.OpEpoch, time.Since(epochStart).Seconds())
		if t.metrics != nil {
			t.metrics.RecordEpoch(opts.Family, opts.Head, loss)
		}
		if epoch%50 == 0 || epoch == opts.Epochs {
			t.logger.Debug("epoch finished", logger.Int("epoch", epoch), logger.Float64("loss", loss))
		}
	}
	return head, loss, nil
}

// crossEntropy is the mean negative log likelihood plus the L2 penalty.
func crossEntropy(head *Softmax, x [][]float64, y []int, l2 float64) float64 {
	var nll float64
	for i, v := range x {
		p := head.Scores(v)[y[i]]
		nll -= math.Log(max(p, 1e-12))
	}
	var penalty float64
	for _, w := range head.Weights {
		penalty += floats.Dot(w, w)
	}
	return nll/float64(len(x)) + l2/2*penalty
}

func classList(samples []Sample) []string {
	seen := make(map[string]struct{})
	var classes []string
	for _, s := range samples {
		if _, ok := seen[s.Class]; !ok {
			seen[s.Class] = struct{}{}
			classes = append(classes, s.Class)
		}
	}
	slices.Sort(classes)
	return classes
}

// GetLogger returns the model logger
func GetLogger() logger.Logger {
	return logger.Global().Module("model")
}
