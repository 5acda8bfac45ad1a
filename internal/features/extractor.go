package features

import (
	"context"
	"fmt"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/inference"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
)

// Extractor turns a clip into a fixed-length embedding
type Extractor interface {
	Embed(ctx context.Context, clip *myaudio.Clip) ([]float64, error)
	// Dim is the embedding length
	Dim() int
	Params() Params
	Close()
}

// NewExtractor returns the TFLite front end when p.ModelPath is set and the
// log-mel front end otherwise.
func NewExtractor(p Params, threads int) (Extractor, error) {
	mel, err := NewMel(p)
	if err != nil {
		return nil, err
	}
	if p.ModelPath == "" {
		return &melExtractor{mel: mel}, nil
	}

	model, err := inference.Load(p.ModelPath, p.Family, threads)
	if err != nil {
		return nil, err
	}
	ex := &tfliteExtractor{mel: mel, model: model}
	if err := ex.checkInput(); err != nil {
		model.Close()
		return nil, err
	}
	return ex, nil
}

// mono returns the clip as one channel at rate.
func mono(clip *myaudio.Clip, rate int) ([]float32, error) {
	if clip.Len() == 0 {
		return nil, errors.New(myaudio.ErrEmptyClip).
			Component("features").
			Category(errors.CategoryValidation).
			Build()
	}
	samples := clip.Samples()
	if clip.SampleRate == rate {
		return samples, nil
	}
	resampled, err := myaudio.ResampleAudio(samples, clip.SampleRate, rate)
	if err != nil {
		return nil, errors.New(err).
			Component("features").
			Category(errors.CategoryAudio).
			Context("operation", "resample").
			Build()
	}
	return resampled, nil
}

type melExtractor struct {
	mel *MelFrontEnd
}

func (e *melExtractor) Embed(_ context.Context, clip *myaudio.Clip) ([]float64, error) {
	samples, err := mono(clip, e.mel.params.SampleRate)
	if err != nil {
		return nil, err
	}
	return e.mel.Embed(samples), nil
}

func (e *melExtractor) Dim() int       { return e.mel.params.Dim() }
func (e *melExtractor) Params() Params { return e.mel.params }
func (e *melExtractor) Close()         {}

// tfliteExtractor feeds raw windows (birdnet) or an fbank (ast) to an
// exported model and uses its first output as the embedding.
type tfliteExtractor struct {
	mel   *MelFrontEnd
	model *inference.Model
}

func (e *tfliteExtractor) windowSize() int {
	p := e.mel.params
	return int(p.ClipLength * float64(p.SampleRate))
}

func (e *tfliteExtractor) checkInput() error {
	p := e.mel.params
	want := e.windowSize()
	if p.Family == conf.FamilyAST {
		want = ASTFrames * p.Bands
	}
	if e.model.InputSize() != want {
		return errors.New(fmt.Errorf("%w: model takes %v, front end produces %d values",
			inference.ErrInputSize, e.model.InputShape(), want)).
			Component("features").
			Category(errors.CategoryModelInit).
			ModelContext(p.Family, p.ModelPath).
			Build()
	}
	return nil
}

func (e *tfliteExtractor) Embed(ctx context.Context, clip *myaudio.Clip) ([]float64, error) {
	samples, err := mono(clip, e.mel.params.SampleRate)
	if err != nil {
		return nil, err
	}
	if e.mel.params.Family == conf.FamilyAST {
		return e.embedFbank(samples)
	}
	return e.embedWindows(ctx, samples)
}

// embedWindows averages the model output over consecutive windows; the
// last window is zero padded.
func (e *tfliteExtractor) embedWindows(ctx context.Context, samples []float32) ([]float64, error) {
	size := e.windowSize()
	sum := make([]float64, e.model.OutputSize())
	windows := 0
	input := make([]float32, size)

	for start := 0; start == 0 || start < len(samples); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clear(input)
		copy(input, samples[start:min(start+size, len(samples))])
		out, err := e.model.Run(input)
		if err != nil {
			return nil, err
		}
		for i, v := range out[:min(len(out), len(sum))] {
			sum[i] += float64(v)
		}
		windows++
	}

	for i := range sum {
		sum[i] /= float64(windows)
	}
	GetLogger().Trace("embedded windows", logger.Int("windows", windows))
	return sum, nil
}

// embedFbank pads or truncates the fbank to ASTFrames frames.
func (e *tfliteExtractor) embedFbank(samples []float32) ([]float64, error) {
	spec := e.mel.Spectrogram(samples)
	bands := spec.Bands
	input := make([]float32, ASTFrames*bands)
	for t, frame := range spec.Frames[:min(len(spec.Frames), ASTFrames)] {
		for b, v := range frame {
			input[t*bands+b] = float32(v)
		}
	}

	out, err := e.model.Run(input)
	if err != nil {
		return nil, err
	}
	emb := make([]float64, len(out))
	for i, v := range out {
		emb[i] = float64(v)
	}
	return emb, nil
}

func (e *tfliteExtractor) Dim() int       { return e.model.OutputSize() }
func (e *tfliteExtractor) Params() Params { return e.mel.params }
func (e *tfliteExtractor) Close()         { e.model.Close() }
