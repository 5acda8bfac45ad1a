package evaluate

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/features"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/model"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

// ErrUnknownClass is returned when the test split holds a class the
// checkpoint was not trained on
var ErrUnknownClass = errors.NewStd("test class unknown to the checkpoint")

// Evaluator applies a checkpoint to a test split
type Evaluator struct {
	checkpoint *model.Checkpoint
	extractor  features.Extractor
	cache      *features.Cache
	metrics    *metrics.EvaluationMetrics
	recorder   metrics.Recorder
	logger     logger.Logger
}

// NewEvaluator checks that ex produces embeddings the checkpoint accepts.
// cache and m may be nil.
func NewEvaluator(cp *model.Checkpoint, ex features.Extractor, cache *features.Cache, m *metrics.EvaluationMetrics) (*Evaluator, error) {
	if ex.Dim() != cp.Dim() {
		return nil, errors.Newf("front end produces %d values, checkpoint expects %d", ex.Dim(), cp.Dim()).
			Component("evaluate").
			Category(errors.CategoryValidation).
			ModelContext(cp.Family, ex.Params().ModelPath).
			Build()
	}
	e := &Evaluator{
		checkpoint: cp,
		extractor:  ex,
		cache:      cache,
		metrics:    m,
		recorder:   metrics.NoopRecorder{},
		logger:     GetLogger(),
	}
	if m != nil {
		e.recorder = m
	}
	return e, nil
}

// Evaluate scores every recording of the test split, in sorted order, and
// returns the report and per-recording predictions.
func (e *Evaluator) Evaluate(ctx context.Context, ds *dataset.Dataset, topK int) (*Report, []Prediction, error) {
	start := time.Now()
	cp := e.checkpoint

	recs := slices.Clone(ds.Split(conf.SplitTest))
	if len(recs) == 0 {
		return nil, nil, errors.New(dataset.ErrEmptyDataset).
			Component("evaluate").
			Category(errors.CategoryDataset).
			Context("root", ds.Root).
			Context("split", conf.SplitTest).
			Build()
	}
	slices.SortFunc(recs, func(a, b dataset.Recording) int { return strings.Compare(a.ID(), b.ID()) })

	var unknown []string
	for _, c := range ds.Classes(conf.SplitTest) {
		if cp.ClassIndex(c) < 0 {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return nil, nil, errors.New(fmt.Errorf("%w: %v", ErrUnknownClass, unknown)).
			Component("evaluate").
			Category(errors.CategoryValidation).
			Context("checkpoint_classes", len(cp.Classes)).
			Build()
	}

	preds := make([]Prediction, len(recs))
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, nil, errors.New(err).
				Component("evaluate").
				Category(errors.CategoryCancellation).
				Context("evaluated", i).
				Build()
		}
		emb, err := e.cache.EmbedFile(ctx, e.extractor, rec.Path)
		if err != nil {
			e.recorder.RecordError(metrics.OpEvaluate, string(errors.CategoryAudio))
			return nil, nil, err
		}
		best, top := cp.Predict(emb, topK)
		truth := cp.ClassIndex(rec.Class)
		preds[i] = Prediction{Path: rec.Path, True: truth, Predicted: best, TopK: top}
		if e.metrics != nil {
			e.metrics.RecordPrediction(best == truth)
		}
	}

	report, err := Compute(cp.Classes, preds, topK)
	if err != nil {
		return nil, nil, err
	}
	report.Family = cp.Family
	report.Head = cp.Head
	report.Corpus = ds.Root

	e.recorder.RecordOperation(metrics.OpEvaluate, metrics.StatusSuccess)
	e.recorder.RecordDuration(metrics.OpEvaluate, time.Since(start).Seconds())
	if e.metrics != nil {
		e.metrics.SetResult(cp.Family, cp.Head, report.Accuracy, report.MacroF1)
	}
	e.logger.WithContext(ctx).Info("evaluation complete",
		logger.String("family", cp.Family),
		logger.String("head", cp.Head),
		logger.Int("samples", report.Samples),
		logger.Float64("accuracy", report.Accuracy),
		logger.Float64("macro_f1", report.MacroF1),
		logger.Duration("elapsed", time.Since(start)))
	return report, preds, nil
}
