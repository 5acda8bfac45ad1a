package preprocess

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

// processClass runs every per-recording operation on one class and writes the
// results. It returns the written paths relative to outDir.
func (p *Pipeline) processClass(ctx context.Context, job classJob, outDir string) ([]string, error) {
	if p.metrics != nil {
		p.metrics.ClassStarted()
		defer p.metrics.ClassFinished()
	}

	log := p.logger.With(logger.String("class", job.class), logger.String("split", job.split))
	log.Debug("processing class", logger.Int("recordings", len(job.recs)))

	dir := classDir(outDir, job)
	var clips []*myaudio.Clip
	var written []string
	seen := make(map[string]string)

	for _, rec := range job.recs {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("preprocess").
				Category(errors.CategoryCancellation).
				Build()
		}

		clip, err := p.timed(metrics.OpDecode, func() (*myaudio.Clip, error) { return myaudio.ReadFile(rec.Path) })
		if err != nil {
			return nil, err
		}
		if p.metrics != nil {
			p.metrics.RecordInput(job.class)
		}

		clip, err = p.transform(clip)
		if err != nil {
			return nil, errors.New(err).
				Component("preprocess").
				Category(errors.CategoryAudio).
				FileContext(rec.Path, 0).
				Build()
		}

		if clip.Len() == 0 {
			log.Warn("skipping recording with no audio left after trimming",
				logger.String("path", rec.Path))
			p.recorder.RecordOperation(metrics.OpTrim, metrics.StatusSkipped)
			continue
		}

		if p.settings.Assemble.Enabled {
			clips = append(clips, clip)
			continue
		}

		name := strings.TrimSuffix(rec.Name, filepath.Ext(rec.Name)) + ".wav"
		if other, ok := seen[name]; ok {
			return nil, errors.New(fmt.Errorf("%w: %s and %s", ErrOutputCollision, other, rec.Name)).
				Component("preprocess").
				Category(errors.CategoryConflict).
				Context("class", job.class).
				Build()
		}
		seen[name] = rec.Name

		rel, err := p.write(outDir, filepath.Join(dir, name), clip, job.class)
		if err != nil {
			return nil, err
		}
		written = append(written, rel)
	}

	if !p.settings.Assemble.Enabled {
		return written, nil
	}

	segments, err := p.assemble(clips)
	if err != nil {
		return nil, errors.New(err).
			Component("preprocess").
			Category(errors.CategoryValidation).
			Context("class", job.class).
			Context("split", job.split).
			Build()
	}
	for i, seg := range segments {
		rel, err := p.write(outDir, filepath.Join(dir, segmentName(job.split, i+1)), seg, job.class)
		if err != nil {
			return nil, err
		}
		written = append(written, rel)
	}
	log.Debug("assembled class", logger.Int("segments", len(segments)))
	return written, nil
}

// segmentName names the n-th assembled segment of a class. The split is part
// of the name so that train and test never share a recording name.
func segmentName(split string, n int) string {
	if split == "" {
		return fmt.Sprintf("combined_%d.wav", n)
	}
	return fmt.Sprintf("combined_%s_%d.wav", split, n)
}

// transform applies resample, downmix, trim and normalize in that order.
func (p *Pipeline) transform(clip *myaudio.Clip) (*myaudio.Clip, error) {
	s := p.settings

	if s.TargetRate > 0 && clip.SampleRate != s.TargetRate {
		resampled, err := p.timed(metrics.OpResample, func() (*myaudio.Clip, error) {
			return myaudio.Resample(clip, s.TargetRate)
		})
		if err != nil {
			return nil, err
		}
		clip = resampled
	}

	if s.Mono {
		clip = myaudio.Downmix(clip)
	}

	if s.Trim.Silence {
		clip = myaudio.TrimSilence(clip, s.Trim.ThresholdDB)
	}
	if s.Trim.MaxLength > 0 {
		clip = myaudio.Truncate(clip, s.Trim.MaxLength)
	}

	switch s.Normalize.Mode {
	case conf.NormalizePeak:
		clip = myaudio.NormalizePeak(clip, s.Normalize.PeakDBFS)
	case conf.NormalizeRMS:
		clip = myaudio.NormalizeRMS(clip, s.Normalize.RMSDBFS)
	}
	return clip, nil
}

// assemble concatenates the clips of a class and cuts the result into
// segments of Assemble.SegmentLength seconds.
func (p *Pipeline) assemble(clips []*myaudio.Clip) ([]*myaudio.Clip, error) {
	if len(clips) == 0 {
		return nil, nil
	}
	rate := clips[0].SampleRate
	for _, c := range clips[1:] {
		if c.SampleRate != rate {
			return nil, fmt.Errorf("%w: %d Hz and %d Hz", ErrMixedSampleRates, rate, c.SampleRate)
		}
	}

	start := time.Now()
	joined, err := myaudio.Concatenate(clips...)
	if err != nil {
		return nil, err
	}
	frames := int(p.settings.Assemble.SegmentLength * float64(rate))
	segments, err := myaudio.Segment(joined, frames, p.settings.Assemble.KeepRemaining)
	if err != nil {
		return nil, err
	}
	p.recorder.RecordDuration(metrics.OpAssemble, time.Since(start).Seconds())
	return segments, nil
}

// write encodes clip at path and returns the path relative to outDir.
func (p *Pipeline) write(outDir, path string, clip *myaudio.Clip, class string) (string, error) {
	start := time.Now()
	if err := myaudio.WriteWAV(path, clip, p.settings.BitDepth); err != nil {
		p.recorder.RecordError(metrics.OpConvert, string(errors.CategoryFileIO))
		return "", err
	}
	p.recorder.RecordDuration(metrics.OpConvert, time.Since(start).Seconds())
	if p.metrics != nil {
		p.metrics.RecordOutput(class, clip.Seconds())
	}
	return filepath.Rel(outDir, path)
}

func (p *Pipeline) timed(op string, fn func() (*myaudio.Clip, error)) (*myaudio.Clip, error) {
	start := time.Now()
	clip, err := fn()
	if err != nil {
		p.recorder.RecordOperation(op, metrics.StatusError)
		return nil, err
	}
	p.recorder.RecordOperation(op, metrics.StatusSuccess)
	p.recorder.RecordDuration(op, time.Since(start).Seconds())
	return clip, nil
}
