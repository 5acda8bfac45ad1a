package dataset

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"slices"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
)

// SplitOptions controls Split
type SplitOptions struct {
	TrainRatio float64
	Seed       uint64
}

// SplitResult counts the recordings written per class
type SplitResult struct {
	Train map[string]int
	Test  map[string]int
}

// Split copies an unsplit <class>/<file> tree at inDir into
// <outDir>/train/<class> and <outDir>/test/<class>.
//
// Classes are visited in sorted order and each one is shuffled by a single
// generator seeded with opts.Seed, so the same seed gives the same partition.
// The first floor(n*TrainRatio) shuffled files of a class go to train.
func Split(ctx context.Context, inDir, outDir string, opts SplitOptions) (*SplitResult, error) {
	if opts.TrainRatio <= 0 || opts.TrainRatio >= 1 {
		return nil, errors.Newf("train ratio must be in (0, 1), got %g", opts.TrainRatio).
			Component("dataset").
			Category(errors.CategoryValidation).
			Build()
	}

	recs, err := ScanDir(ctx, inDir, "", ScanOptions{})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.New(ErrEmptyDataset).
			Component("dataset").
			Category(errors.CategoryDataset).
			Context("dir", inDir).
			Build()
	}

	byClass := (&Dataset{Recordings: recs}).ByClass("")
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed)) //nolint:gosec // reproducible split, not security
	result := &SplitResult{Train: make(map[string]int), Test: make(map[string]int)}

	for _, class := range classes {
		files := byClass[class]
		rng.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
		idx := int(float64(len(files)) * opts.TrainRatio)

		for i, rec := range files {
			if err := ctx.Err(); err != nil {
				return nil, cancelled(err)
			}
			split := conf.SplitTrain
			if i >= idx {
				split = conf.SplitTest
			}
			dst := filepath.Join(outDir, split, filepath.Base(filepath.Dir(rec.Path)), rec.Name)
			if err := CopyFile(rec.Path, dst); err != nil {
				return nil, errors.New(err).
					Component("dataset").
					Category(errors.CategoryFileIO).
					Context("operation", "split-copy").
					FileContext(rec.Path, 0).
					Build()
			}
		}
		result.Train[class] = idx
		result.Test[class] = len(files) - idx

		GetLogger().Debug("split class",
			logger.String("class", class),
			logger.Int("train", idx),
			logger.Int("test", len(files)-idx))
	}

	GetLogger().Info("dataset split complete",
		logger.String("out", outDir),
		logger.Int("classes", len(classes)),
		logger.Uint64("seed", opts.Seed))
	return result, nil
}
