package myaudio

import (
	"github.com/wolfhowl/bioacoustics/internal/errors"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither WAV nor FLAC
	ErrUnsupportedFormat = errors.NewStd("unsupported audio format")
	// ErrUnsupportedBitDepth is returned for PCM depths other than 16, 24 and 32
	ErrUnsupportedBitDepth = errors.NewStd("unsupported audio bit depth")
	// ErrSampleRateMismatch is returned when clips of different rates are combined
	ErrSampleRateMismatch = errors.NewStd("sample rate mismatch")
	// ErrChannelMismatch is returned when clips of different channel counts are combined
	ErrChannelMismatch = errors.NewStd("channel count mismatch")
	// ErrEmptyClip is returned when an operation needs at least one sample
	ErrEmptyClip = errors.NewStd("clip has no samples")
)

func audioError(err error, op, path string) error {
	return errors.New(err).
		Component("myaudio").
		Category(errors.CategoryAudio).
		Context("operation", op).
		FileContext(path, 0).
		Build()
}

func fileError(err error, op, path string) error {
	return errors.New(err).
		Component("myaudio").
		Category(errors.CategoryFileIO).
		Context("operation", op).
		FileContext(path, 0).
		Build()
}
