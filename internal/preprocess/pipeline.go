// Package preprocess turns a directory of raw recordings into a train/test
// ready corpus: resampling, downmixing, trimming, normalization, class-wise
// assembly into fixed-length segments and conversion to PCM WAV.
package preprocess

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

var (
	// ErrMixedSampleRates is returned when a class cannot be assembled because
	// its recordings differ in sample rate and resampling is disabled
	ErrMixedSampleRates = errors.NewStd("recordings of a class have different sample rates")
	// ErrOutputCollision is returned when two inputs map to the same output file
	ErrOutputCollision = errors.NewStd("two recordings map to the same output file")
	// ErrLocked is returned when another run holds the output directory
	ErrLocked = errors.NewStd("output directory is locked by another run")
)

// Summary describes a finished run
type Summary struct {
	Inputs      int
	Outputs     int
	Classes     int
	Skipped     bool // fingerprint matched, nothing was written
	Fingerprint string
	Elapsed     time.Duration
}

// Pipeline applies the configured operations to every class of a corpus.
type Pipeline struct {
	settings conf.PreprocessSettings
	metrics  *metrics.PreprocessMetrics
	recorder metrics.Recorder
	logger   logger.Logger
}

// New creates a pipeline. m may be nil.
func New(settings conf.PreprocessSettings, m *metrics.PreprocessMetrics) *Pipeline {
	p := &Pipeline{
		settings: settings,
		metrics:  m,
		recorder: metrics.NoopRecorder{},
		logger:   GetLogger(),
	}
	if m != nil {
		p.recorder = m
	}
	return p
}

// classJob is the unit of parallel work
type classJob struct {
	split string
	class string
	recs  []dataset.Recording
}

// Run processes every recording under inDir into outDir.
//
// The split layout of inDir is preserved. Classes run concurrently on a
// bounded worker pool and the first error cancels the run. When SkipUnchanged
// is set and outDir holds a manifest with the same fingerprint, Run returns
// without touching any file.
func (p *Pipeline) Run(ctx context.Context, inDir, outDir string) (*Summary, error) {
	start := time.Now()

	if same, err := samePath(inDir, outDir); err != nil || same {
		if err == nil {
			err = fmt.Errorf("input and output directory are the same: %s", inDir)
		}
		return nil, errors.New(err).
			Component("preprocess").
			Category(errors.CategoryValidation).
			Build()
	}

	unlock, err := lockOutput(outDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ds, err := dataset.Scan(ctx, inDir, dataset.ScanOptions{})
	if err != nil {
		return nil, err
	}
	if len(ds.Recordings) == 0 {
		return nil, errors.New(dataset.ErrEmptyDataset).
			Component("preprocess").
			Category(errors.CategoryDataset).
			Context("dir", inDir).
			Build()
	}

	fp, err := fingerprint(p.settings, ds)
	if err != nil {
		return nil, err
	}

	previous, err := loadManifest(outDir)
	if err != nil {
		return nil, err
	}
	if p.settings.SkipUnchanged && previous.matches(fp, outDir) {
		p.logger.Info("preprocessing skipped, inputs and settings unchanged",
			logger.String("out", outDir),
			logger.String("fingerprint", fp))
		p.recorder.RecordOperation(OpRun, metrics.StatusSkipped)
		return &Summary{Inputs: len(ds.Recordings), Outputs: len(previous.Outputs), Skipped: true, Fingerprint: fp}, nil
	}
	if err := previous.removeOutputs(outDir); err != nil {
		return nil, err
	}

	jobs := groupJobs(ds)
	outputs := make([][]string, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conf.EffectiveWorkers(p.settings.Workers))
	for i, job := range jobs {
		g.Go(func() error {
			written, err := p.processClass(gctx, job, outDir)
			if err != nil {
				return err
			}
			outputs[i] = written
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.recorder.RecordOperation(OpRun, metrics.StatusError)
		return nil, err
	}

	m := &manifest{Fingerprint: fp, CreatedAt: time.Now().UTC(), Inputs: len(ds.Recordings)}
	for _, o := range outputs {
		m.Outputs = append(m.Outputs, o...)
	}
	slices.Sort(m.Outputs)
	if err := m.save(outDir); err != nil {
		return nil, err
	}

	summary := &Summary{
		Inputs:      len(ds.Recordings),
		Outputs:     len(m.Outputs),
		Classes:     len(jobs),
		Fingerprint: fp,
		Elapsed:     time.Since(start),
	}
	p.recorder.RecordOperation(OpRun, metrics.StatusSuccess)
	p.recorder.RecordDuration(OpRun, summary.Elapsed.Seconds())
	p.logger.Info("preprocessing complete",
		logger.String("out", outDir),
		logger.Int("inputs", summary.Inputs),
		logger.Int("outputs", summary.Outputs),
		logger.Int("classes", summary.Classes),
		logger.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// OpRun names a full pipeline run in metrics
const OpRun = "run"

func groupJobs(ds *dataset.Dataset) []classJob {
	var jobs []classJob
	for _, split := range []string{"", conf.SplitTrain, conf.SplitTest} {
		byClass := ds.ByClass(split)
		for _, class := range ds.Classes(split) {
			jobs = append(jobs, classJob{split: split, class: class, recs: byClass[class]})
		}
	}
	return jobs
}

// classDir returns the output directory of a job. The on-disk directory name
// of the input is kept so that NFC normalization never renames a class.
func classDir(outDir string, job classJob) string {
	name := filepath.Base(filepath.Dir(job.recs[0].Path))
	return filepath.Join(outDir, job.split, name)
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

// GetLogger returns the preprocess logger
func GetLogger() logger.Logger {
	return logger.Global().Module("preprocess")
}
