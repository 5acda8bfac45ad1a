// Package features turns clips into fixed-length embeddings for the
// classification heads. Each model family has a log-mel front end and may
// instead use an exported TFLite front end.
package features

import (
	"fmt"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
)

// ErrUnknownFamily is returned for families other than birdnet and ast
var ErrUnknownFamily = errors.NewStd("unknown model family")

// AST fbank normalization constants (AudioSet statistics)
const (
	ASTNormMean = -4.2677393
	ASTNormStd  = 4.5689974

	// ASTFrames is the number of fbank frames the AST input tensor holds
	ASTFrames = 1024
)

// Params describes a front end. It is stored in checkpoints so evaluation
// extracts features exactly as training did.
type Params struct {
	Family     string  `json:"family"`
	SampleRate int     `json:"sample_rate"`
	Bands      int     `json:"bands"`
	FFT        int     `json:"fft"`
	Window     int     `json:"window"` // samples per frame, zero padded to FFT
	Hop        int     `json:"hop"`
	MinHz      float64 `json:"min_hz"`
	MaxHz      float64 `json:"max_hz"`
	NormMean   float64 `json:"norm_mean,omitempty"`
	NormStd    float64 `json:"norm_std,omitempty"`    // 0 leaves log-mel values unscaled
	ModelPath  string  `json:"model_path,omitempty"`  // TFLite front end, empty uses log-mel
	ClipLength float64 `json:"clip_length,omitempty"` // seconds per TFLite input window
}

// DefaultParams returns the built-in front end of a family.
func DefaultParams(family string) (Params, error) {
	switch family {
	case conf.FamilyBirdNET:
		return Params{
			Family:     family,
			SampleRate: conf.SampleRate,
			Bands:      64,
			FFT:        1024,
			Window:     1024,
			Hop:        512,
			MinHz:      150,
			MaxHz:      15000,
			ClipLength: conf.CaptureLength,
		}, nil
	case conf.FamilyAST:
		// 25 ms window, 10 ms hop
		return Params{
			Family:     family,
			SampleRate: conf.ASTSampleRate,
			Bands:      128,
			FFT:        512,
			Window:     400,
			Hop:        160,
			MinHz:      20,
			MaxHz:      conf.ASTSampleRate / 2,
			NormMean:   ASTNormMean,
			NormStd:    ASTNormStd,
		}, nil
	default:
		return Params{}, errors.New(fmt.Errorf("%w: %q", ErrUnknownFamily, family)).
			Component("features").
			Category(errors.CategoryValidation).
			Build()
	}
}

// ParamsFor returns the front end of family with the configured mel
// overrides and TFLite model path applied.
func ParamsFor(family string, settings *conf.FeatureSettings) (Params, error) {
	p, err := DefaultParams(family)
	if err != nil {
		return Params{}, err
	}
	if settings == nil {
		return p, p.Validate()
	}

	if shape, ok := settings.Mel[family]; ok {
		if shape.Bands > 0 {
			p.Bands = shape.Bands
		}
		if shape.FFT > 0 {
			p.FFT = shape.FFT
			p.Window = min(p.Window, shape.FFT)
		}
		if shape.Hop > 0 {
			p.Hop = shape.Hop
		}
		if shape.MinHz > 0 {
			p.MinHz = shape.MinHz
		}
		if shape.MaxHz > 0 {
			p.MaxHz = shape.MaxHz
		}
	}

	switch family {
	case conf.FamilyBirdNET:
		p.ModelPath = settings.BirdNET.ModelPath
	case conf.FamilyAST:
		p.ModelPath = settings.AST.ModelPath
	}
	return p, p.Validate()
}

// Validate checks that the parameters describe a usable front end.
func (p Params) Validate() error {
	var problems []string
	if p.SampleRate <= 0 {
		problems = append(problems, "sample rate must be positive")
	}
	if p.Bands <= 0 {
		problems = append(problems, "band count must be positive")
	}
	if p.FFT <= 0 || p.Window <= 0 || p.Window > p.FFT {
		problems = append(problems, fmt.Sprintf("window %d must be within FFT size %d", p.Window, p.FFT))
	}
	if p.Hop <= 0 {
		problems = append(problems, "hop must be positive")
	}
	if p.MinHz < 0 || p.MinHz >= p.MaxHz || p.MaxHz > float64(p.SampleRate)/2 {
		problems = append(problems, fmt.Sprintf("frequency range %.0f-%.0f Hz invalid for %d Hz", p.MinHz, p.MaxHz, p.SampleRate))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid %s front end: %v", p.Family, problems).
		Component("features").
		Category(errors.CategoryValidation).
		Build()
}

// Dim returns the embedding length of the log-mel front end.
func (p Params) Dim() int {
	return 2 * p.Bands
}

// GetLogger returns the features logger
func GetLogger() logger.Logger {
	return logger.Global().Module("features")
}
