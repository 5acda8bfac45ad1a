// Package myaudio decodes, transforms and encodes recordings.
//
// Recordings are held in memory as a Clip: one float32 slice per channel,
// samples in [-1, 1]. WAV (16, 24 and 32-bit PCM) and FLAC are read;
// WAV is written.
package myaudio

import (
	"time"

	"github.com/wolfhowl/bioacoustics/internal/logger"
)

// Clip is a decoded recording
type Clip struct {
	SampleRate int
	Channels   [][]float32
}

// NewMonoClip wraps samples as a single-channel clip.
func NewMonoClip(samples []float32, sampleRate int) *Clip {
	return &Clip{SampleRate: sampleRate, Channels: [][]float32{samples}}
}

// Len returns the number of frames (samples per channel).
func (c *Clip) Len() int {
	if c == nil || len(c.Channels) == 0 {
		return 0
	}
	return len(c.Channels[0])
}

// NumChannels returns the channel count.
func (c *Clip) NumChannels() int {
	if c == nil {
		return 0
	}
	return len(c.Channels)
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.Len()) / float64(c.SampleRate) * float64(time.Second))
}

// Seconds returns the clip length in seconds.
func (c *Clip) Seconds() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Len()) / float64(c.SampleRate)
}

// Samples returns the mono signal: the only channel, or the channel mean.
func (c *Clip) Samples() []float32 {
	switch c.NumChannels() {
	case 0:
		return nil
	case 1:
		return c.Channels[0]
	default:
		return Downmix(c).Channels[0]
	}
}

// Clone returns a deep copy.
func (c *Clip) Clone() *Clip {
	out := &Clip{SampleRate: c.SampleRate, Channels: make([][]float32, len(c.Channels))}
	for i, ch := range c.Channels {
		out.Channels[i] = append([]float32(nil), ch...)
	}
	return out
}

// AudioInfo describes a file without decoding its samples
type AudioInfo struct {
	SampleRate   int
	TotalSamples int // frames per channel
	NumChannels  int
	BitDepth     int
}

// Duration returns the recording length.
func (i AudioInfo) Duration() time.Duration {
	if i.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(i.TotalSamples) / float64(i.SampleRate) * float64(time.Second))
}

// GetLogger returns the audio logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}
