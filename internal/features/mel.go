package features

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// logFloor keeps log-mel values finite for silent frames
const logFloor = 1e-10

// Spectrogram is a log-mel spectrogram, one row of Bands values per frame
type Spectrogram struct {
	Bands  int
	Frames [][]float64
}

// Band returns the values of band b across all frames.
func (s *Spectrogram) Band(b int) []float64 {
	out := make([]float64, len(s.Frames))
	for t, frame := range s.Frames {
		out[t] = frame[b]
	}
	return out
}

// MelFrontEnd computes log-mel spectrograms with a periodic Hann window
// and triangular mel filters.
type MelFrontEnd struct {
	params  Params
	window  []float64
	filters [][]float64
}

// NewMel builds the window and filter bank for p.
func NewMel(p Params) (*MelFrontEnd, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &MelFrontEnd{
		params:  p,
		window:  hann(p.Window),
		filters: melFilterBank(p.Bands, p.FFT, p.SampleRate, p.MinHz, p.MaxHz),
	}, nil
}

// Params returns the front end parameters.
func (m *MelFrontEnd) Params() Params {
	return m.params
}

// Spectrogram computes the log-mel spectrogram of a mono signal sampled at
// the front end rate. Signals shorter than one window are zero padded.
func (m *MelFrontEnd) Spectrogram(samples []float32) *Spectrogram {
	p := m.params
	n := max(len(samples), p.Window)
	frames := 1 + (n-p.Window)/p.Hop

	spec := &Spectrogram{Bands: p.Bands, Frames: make([][]float64, frames)}
	buf := make([]float64, p.FFT)
	power := make([]float64, p.FFT/2+1)

	for t := range frames {
		clear(buf)
		start := t * p.Hop
		for i := range p.Window {
			if start+i < len(samples) {
				buf[i] = float64(samples[start+i]) * m.window[i]
			}
		}

		bins := fft.FFTReal(buf)
		for k := range power {
			a := cmplx.Abs(bins[k])
			power[k] = a * a
		}

		row := make([]float64, p.Bands)
		for b, filter := range m.filters {
			var e float64
			for k, w := range filter {
				if w != 0 {
					e += w * power[k]
				}
			}
			v := math.Log(max(e, logFloor))
			if p.NormStd > 0 {
				v = (v - p.NormMean) / (2 * p.NormStd)
			}
			row[b] = v
		}
		spec.Frames[t] = row
	}
	return spec
}

// Embed summarizes a spectrogram as per-band mean followed by per-band
// standard deviation.
func (m *MelFrontEnd) Embed(samples []float32) []float64 {
	return summarize(m.Spectrogram(samples))
}

func summarize(spec *Spectrogram) []float64 {
	out := make([]float64, 2*spec.Bands)
	for b := range spec.Bands {
		band := spec.Band(b)
		if len(band) < 2 {
			out[b] = stat.Mean(band, nil)
			continue
		}
		mean, std := stat.MeanStdDev(band, nil)
		out[b] = mean
		out[spec.Bands+b] = std
	}
	return out
}

// hann returns a periodic Hann window of size n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range n {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterBank returns bands triangular filters over the fftSize/2+1
// spectrum bins, equally spaced on the mel scale between lowHz and highHz.
// Weights are evaluated at the bin centre frequencies.
func melFilterBank(bands, fftSize, sampleRate int, lowHz, highHz float64) [][]float64 {
	lowMel, highMel := hzToMel(lowHz), hzToMel(highHz)
	edges := make([]float64, bands+2)
	step := (highMel - lowMel) / float64(bands+1)
	for i := range edges {
		edges[i] = melToHz(lowMel + float64(i)*step)
	}

	nbins := fftSize/2 + 1
	binHz := float64(sampleRate) / float64(fftSize)
	bank := make([][]float64, bands)
	for b := range bands {
		left, centre, right := edges[b], edges[b+1], edges[b+2]
		filter := make([]float64, nbins)
		for k := range nbins {
			f := float64(k) * binHz
			rising := (f - left) / (centre - left)
			falling := (right - f) / (right - centre)
			filter[k] = max(0, min(rising, falling))
		}
		bank[b] = filter
	}
	return bank
}
