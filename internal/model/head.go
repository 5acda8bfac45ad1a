package model

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Head scores an embedding against every class; higher is better.
type Head interface {
	Scores(x []float64) []float64
}

// Softmax is a multinomial logistic regression head
type Softmax struct {
	Weights [][]float64 `json:"weights"` // one row per class
	Bias    []float64   `json:"bias"`
}

func newSoftmax(classes, dim int) *Softmax {
	s := &Softmax{Weights: make([][]float64, classes), Bias: make([]float64, classes)}
	for c := range s.Weights {
		s.Weights[c] = make([]float64, dim)
	}
	return s
}

// Scores returns class probabilities.
func (s *Softmax) Scores(x []float64) []float64 {
	logits := make([]float64, len(s.Weights))
	for c, w := range s.Weights {
		logits[c] = floats.Dot(w, x) + s.Bias[c]
	}
	return softmax(logits)
}

// softmax normalizes logits in place and returns them.
func softmax(logits []float64) []float64 {
	peak := floats.Max(logits)
	var sum float64
	for i, v := range logits {
		logits[i] = math.Exp(v - peak)
		sum += logits[i]
	}
	floats.Scale(1/sum, logits)
	return logits
}

// Centroid is a nearest-template head using cosine similarity
type Centroid struct {
	Templates [][]float64 `json:"templates"` // mean standardized embedding per class
}

// Scores returns the cosine similarity to each class template.
func (c *Centroid) Scores(x []float64) []float64 {
	out := make([]float64, len(c.Templates))
	nx := floats.Norm(x, 2)
	for i, t := range c.Templates {
		nt := floats.Norm(t, 2)
		if nx == 0 || nt == 0 {
			continue
		}
		out[i] = floats.Dot(x, t) / (nx * nt)
	}
	return out
}

func fitCentroid(x [][]float64, y []int, classes int) *Centroid {
	dim := len(x[0])
	c := &Centroid{Templates: make([][]float64, classes)}
	counts := make([]int, classes)
	for i := range c.Templates {
		c.Templates[i] = make([]float64, dim)
	}
	for i, v := range x {
		floats.Add(c.Templates[y[i]], v)
		counts[y[i]]++
	}
	for i, t := range c.Templates {
		if counts[i] > 0 {
			floats.Scale(1/float64(counts[i]), t)
		}
	}
	return c
}

// Standardizer rescales features with train-set statistics
type Standardizer struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitStandardizer computes per-dimension mean and standard deviation.
// Constant dimensions get a unit scale.
func FitStandardizer(x [][]float64) Standardizer {
	dim := len(x[0])
	s := Standardizer{Mean: make([]float64, dim), Std: make([]float64, dim)}
	col := make([]float64, len(x))
	for d := range dim {
		for i, row := range x {
			col[i] = row[d]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[d], s.Std[d] = mean, std
	}
	return s
}

// Apply returns a standardized copy of v.
func (s Standardizer) Apply(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - s.Mean[i]) / s.Std[i]
	}
	return out
}

// argmax returns the index of the largest value, the first on ties.
func argmax(v []float64) int {
	return floats.MaxIdx(v)
}

// topK returns the indices of the k largest values, best first. Ties keep
// class order.
func topK(v []float64, k int) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(v[b], v[a]) })
	return idx[:min(k, len(idx))]
}
