package myaudio

import (
	"fmt"
	"math"
)

// Resample converts clip to targetRate using linear interpolation.
// Downsampling first applies a moving-average low-pass sized to the rate ratio.
// A clip already at targetRate is returned unchanged.
func Resample(clip *Clip, targetRate int) (*Clip, error) {
	if targetRate <= 0 || clip.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d -> %d", clip.SampleRate, targetRate)
	}
	if clip.SampleRate == targetRate {
		return clip, nil
	}

	out := &Clip{SampleRate: targetRate, Channels: make([][]float32, clip.NumChannels())}
	for ch, samples := range clip.Channels {
		resampled, err := ResampleAudio(samples, clip.SampleRate, targetRate)
		if err != nil {
			return nil, err
		}
		out.Channels[ch] = resampled
	}
	return out, nil
}

// ResampleAudio resamples a mono signal from originalRate to targetRate.
// Output length is round(len * targetRate / originalRate).
func ResampleAudio(samples []float32, originalRate, targetRate int) ([]float32, error) {
	if originalRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d -> %d", originalRate, targetRate)
	}
	if originalRate == targetRate || len(samples) == 0 {
		return samples, nil
	}

	src := samples
	if targetRate < originalRate {
		src = boxFilter(samples, int(math.Round(float64(originalRate)/float64(targetRate))))
	}

	ratio := float64(originalRate) / float64(targetRate)
	newLength := int(math.Round(float64(len(samples)) / ratio))
	if newLength <= 0 {
		return []float32{}, nil
	}

	out := make([]float32, newLength)
	last := len(src) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = src[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = src[idx]*(1-frac) + src[idx+1]*frac
	}
	return out, nil
}

// boxFilter is a centered moving average of the given width.
func boxFilter(samples []float32, width int) []float32 {
	if width <= 1 {
		return samples
	}
	half := width / 2
	out := make([]float32, len(samples))

	var sum float64
	lo, hi := 0, -1
	for i := range samples {
		wantLo := max(0, i-half)
		wantHi := min(len(samples)-1, i+half)
		for hi < wantHi {
			hi++
			sum += float64(samples[hi])
		}
		for lo < wantLo {
			sum -= float64(samples[lo])
			lo++
		}
		out[i] = float32(sum / float64(hi-lo+1))
	}
	return out
}
