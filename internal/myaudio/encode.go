package myaudio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes clip as integer PCM WAV at the given bit depth.
// Samples outside [-1, 1] are clipped. Parent directories are created.
func WriteWAV(path string, clip *Clip, bitDepth int) error {
	if clip == nil || clip.NumChannels() == 0 {
		return audioError(ErrEmptyClip, "write-wav", path)
	}
	divisor, err := getAudioDivisor(bitDepth)
	if err != nil {
		return audioError(err, "write-wav", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fileError(fmt.Errorf("failed to create directories: %w", err), "write-wav", path)
	}

	outFile, err := os.Create(path) //nolint:gosec // output paths come from the caller
	if err != nil {
		return fileError(fmt.Errorf("failed to create file: %w", err), "write-wav", path)
	}
	defer outFile.Close()

	numChans := clip.NumChannels()
	enc := wav.NewEncoder(outFile, clip.SampleRate, bitDepth, numChans, 1)

	buf := &audio.IntBuffer{
		Data:           interleave(clip, divisor, wavOffset(bitDepth)),
		Format:         &audio.Format{SampleRate: clip.SampleRate, NumChannels: numChans},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return audioError(fmt.Errorf("failed to write to WAV encoder: %w", err), "write-wav", path)
	}

	if err := enc.Close(); err != nil {
		return audioError(fmt.Errorf("failed to finalize WAV: %w", err), "write-wav", path)
	}
	return nil
}

// interleave converts float channels to interleaved integer samples shifted
// by offset.
func interleave(clip *Clip, divisor float32, offset int) []int {
	numChans := clip.NumChannels()
	frames := clip.Len()
	maxVal := float64(divisor) - 1
	minVal := -float64(divisor)

	data := make([]int, frames*numChans)
	for f := range frames {
		for ch := range numChans {
			v := math.Round(float64(clip.Channels[ch][f]) * float64(divisor))
			v = math.Max(minVal, math.Min(maxVal, v))
			data[f*numChans+ch] = int(v) + offset
		}
	}
	return data
}
