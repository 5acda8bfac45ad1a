// Package playback plays clips on the default sound card through malgo.
package playback

import (
	"context"
	"encoding/binary"
	"math"
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
)

const bytesPerSample = 4 // f32

// Player plays one clip at a time.
type Player interface {
	// Play blocks until the clip has finished or ctx is done.
	Play(ctx context.Context, clip *myaudio.Clip) error
	Close() error
}

// NoopPlayer discards audio. Used when no sound card is wanted.
type NoopPlayer struct{}

func (NoopPlayer) Play(context.Context, *myaudio.Clip) error { return nil }
func (NoopPlayer) Close() error                              { return nil }

// DevicePlayer owns a malgo context and opens a playback device per clip.
type DevicePlayer struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewDevicePlayer initializes the platform audio backend.
func NewDevicePlayer() (*DevicePlayer, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}
	mctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("playback").
			Category(errors.CategoryPlayback).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return &DevicePlayer{ctx: mctx}, nil
}

func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("no audio backend for %s", runtime.GOOS).
			Component("playback").
			Category(errors.CategoryPlayback).
			Build()
	}
}

// Play downmixes clip and plays it at its own sample rate.
func (p *DevicePlayer) Play(ctx context.Context, clip *myaudio.Clip) error {
	if clip.Len() == 0 {
		return errors.New(myaudio.ErrEmptyClip).
			Component("playback").
			Category(errors.CategoryValidation).
			Build()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return errors.Newf("player closed").
			Component("playback").
			Category(errors.CategoryState).
			Build()
	}

	samples := clip.Samples()
	done := make(chan struct{})
	var once sync.Once
	pos := 0

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(clip.SampleRate)
	cfg.Alsa.NoMMap = 1

	onData := func(out, _ []byte, _ uint32) {
		pos += fill(out, samples, pos)
		if pos >= len(samples) {
			once.Do(func() { close(done) })
		}
	}

	device, err := malgo.InitDevice(p.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return errors.New(err).
			Component("playback").
			Category(errors.CategoryPlayback).
			Context("operation", "init_device").
			Context("sample_rate", clip.SampleRate).
			Build()
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return errors.New(err).
			Component("playback").
			Category(errors.CategoryPlayback).
			Context("operation", "start_device").
			Build()
	}

	GetLogger().Debug("playing clip",
		logger.Int("sample_rate", clip.SampleRate),
		logger.Float64("seconds", clip.Seconds()))

	select {
	case <-done:
	case <-ctx.Done():
	}
	_ = device.Stop()
	return ctx.Err()
}

// Close releases the audio backend. Safe to call more than once.
func (p *DevicePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Uninit()
	p.ctx.Free()
	p.ctx = nil
	return err
}

// fill writes samples[pos:] into out as little-endian f32 and pads the
// rest of out with silence. It returns the number of samples consumed.
func fill(out []byte, samples []float32, pos int) int {
	n := 0
	for i := 0; i+bytesPerSample <= len(out); i += bytesPerSample {
		v := float32(0)
		if pos+n < len(samples) {
			v = samples[pos+n]
			n++
		}
		binary.LittleEndian.PutUint32(out[i:], math.Float32bits(v))
	}
	return n
}

// GetLogger returns the playback logger
func GetLogger() logger.Logger {
	return logger.Global().Module("playback")
}
