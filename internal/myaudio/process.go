package myaudio

import (
	"fmt"
	"math"
)

// Downmix averages all channels into one.
func Downmix(clip *Clip) *Clip {
	if clip.NumChannels() <= 1 {
		return clip
	}
	n := clip.Len()
	mono := make([]float32, n)
	scale := 1 / float32(clip.NumChannels())
	for _, ch := range clip.Channels {
		for i, v := range ch[:n] {
			mono[i] += v * scale
		}
	}
	return NewMonoClip(mono, clip.SampleRate)
}

// DBFSToAmplitude converts a dBFS level to a linear amplitude.
func DBFSToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

// Peak returns the largest absolute sample value across channels.
func Peak(clip *Clip) float64 {
	var peak float64
	for _, ch := range clip.Channels {
		for _, v := range ch {
			peak = math.Max(peak, math.Abs(float64(v)))
		}
	}
	return peak
}

// RMS returns the root mean square over all channels.
func RMS(clip *Clip) float64 {
	var sum float64
	var n int
	for _, ch := range clip.Channels {
		for _, v := range ch {
			sum += float64(v) * float64(v)
		}
		n += len(ch)
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// NormalizePeak scales clip so its peak sits at peakDBFS. Silent clips are unchanged.
func NormalizePeak(clip *Clip, peakDBFS float64) *Clip {
	peak := Peak(clip)
	if peak == 0 {
		return clip
	}
	return gain(clip, DBFSToAmplitude(peakDBFS)/peak)
}

// NormalizeRMS scales clip so its RMS sits at rmsDBFS. The gain is limited
// so the peak never exceeds full scale.
func NormalizeRMS(clip *Clip, rmsDBFS float64) *Clip {
	rms := RMS(clip)
	if rms == 0 {
		return clip
	}
	g := DBFSToAmplitude(rmsDBFS) / rms
	if peak := Peak(clip); peak*g > 1 {
		g = 1 / peak
	}
	return gain(clip, g)
}

func gain(clip *Clip, g float64) *Clip {
	out := clip.Clone()
	for _, ch := range out.Channels {
		for i := range ch {
			ch[i] = float32(float64(ch[i]) * g)
		}
	}
	return out
}

// TrimSilence drops leading and trailing frames whose absolute value stays
// below thresholdDBFS on every channel. An all-silent clip becomes empty.
func TrimSilence(clip *Clip, thresholdDBFS float64) *Clip {
	threshold := float32(DBFSToAmplitude(thresholdDBFS))
	loud := func(f int) bool {
		for _, ch := range clip.Channels {
			if ch[f] >= threshold || ch[f] <= -threshold {
				return true
			}
		}
		return false
	}

	n := clip.Len()
	start := 0
	for start < n && !loud(start) {
		start++
	}
	end := n
	for end > start && !loud(end-1) {
		end--
	}
	return Slice(clip, start, end)
}

// Truncate keeps at most maxSeconds of audio.
func Truncate(clip *Clip, maxSeconds float64) *Clip {
	if maxSeconds <= 0 {
		return clip
	}
	limit := int(maxSeconds * float64(clip.SampleRate))
	if clip.Len() <= limit {
		return clip
	}
	return Slice(clip, 0, limit)
}

// Slice returns frames [start, end) sharing the underlying arrays.
func Slice(clip *Clip, start, end int) *Clip {
	out := &Clip{SampleRate: clip.SampleRate, Channels: make([][]float32, clip.NumChannels())}
	for i, ch := range clip.Channels {
		out.Channels[i] = ch[start:end:end]
	}
	return out
}

// PadTo zero-pads clip to exactly frames frames, or cuts it if longer.
func PadTo(clip *Clip, frames int) *Clip {
	out := &Clip{SampleRate: clip.SampleRate, Channels: make([][]float32, clip.NumChannels())}
	for i, ch := range clip.Channels {
		padded := make([]float32, frames)
		copy(padded, ch)
		out.Channels[i] = padded
	}
	return out
}

// Concatenate joins clips end to end. All clips must share sample rate and channel count.
func Concatenate(clips ...*Clip) (*Clip, error) {
	if len(clips) == 0 {
		return nil, ErrEmptyClip
	}

	first := clips[0]
	total := 0
	for _, c := range clips {
		if c.SampleRate != first.SampleRate {
			return nil, fmt.Errorf("%w: %d Hz and %d Hz", ErrSampleRateMismatch, first.SampleRate, c.SampleRate)
		}
		if c.NumChannels() != first.NumChannels() {
			return nil, fmt.Errorf("%w: %d and %d", ErrChannelMismatch, first.NumChannels(), c.NumChannels())
		}
		total += c.Len()
	}

	out := &Clip{SampleRate: first.SampleRate, Channels: make([][]float32, first.NumChannels())}
	for ch := range out.Channels {
		joined := make([]float32, 0, total)
		for _, c := range clips {
			joined = append(joined, c.Channels[ch]...)
		}
		out.Channels[ch] = joined
	}
	return out, nil
}

// Segment cuts clip into consecutive pieces of exactly segmentFrames frames.
// The trailing remainder is zero-padded into a final piece when keepRemaining is set,
// and dropped otherwise.
func Segment(clip *Clip, segmentFrames int, keepRemaining bool) ([]*Clip, error) {
	if segmentFrames <= 0 {
		return nil, fmt.Errorf("segment length must be positive, got %d frames", segmentFrames)
	}

	n := clip.Len()
	full := n / segmentFrames
	segments := make([]*Clip, 0, full+1)
	for i := range full {
		segments = append(segments, Slice(clip, i*segmentFrames, (i+1)*segmentFrames))
	}

	if rem := n - full*segmentFrames; rem > 0 && keepRemaining {
		segments = append(segments, PadTo(Slice(clip, full*segmentFrames, n), segmentFrames))
	}
	return segments, nil
}
