// Package evaluate scores a trained checkpoint on a held-out split and
// renders the resulting metric report.
package evaluate

import (
	"fmt"
	"math"
	"time"

	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
)

// ErrInvalidReport is returned when a report holds out-of-range values
var ErrInvalidReport = errors.NewStd("metric report out of range")

// Prediction is the outcome for one test recording. Indices refer to
// Report.Classes.
type Prediction struct {
	Path      string `json:"path"`
	True      int    `json:"true"`
	Predicted int    `json:"predicted"`
	TopK      []int  `json:"top_k"`
}

// ClassMetrics holds per-class precision, recall and F1
type ClassMetrics struct {
	Class     string  `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is the result of one evaluation run
type Report struct {
	ID             string         `json:"id,omitempty"`
	Family         string         `json:"family"`
	Head           string         `json:"head"`
	Checkpoint     string         `json:"checkpoint"`
	Corpus         string         `json:"corpus"`
	Classes        []string       `json:"classes"`
	Samples        int            `json:"samples"`
	Accuracy       float64        `json:"accuracy"`
	TopK           int            `json:"top_k"`
	TopKAccuracy   float64        `json:"top_k_accuracy"`
	MacroPrecision float64        `json:"macro_precision"`
	MacroRecall    float64        `json:"macro_recall"`
	MacroF1        float64        `json:"macro_f1"`
	PerClass       []ClassMetrics `json:"per_class"`
	Confusion      [][]int        `json:"confusion"` // rows are true classes, columns predictions
	CreatedAt      time.Time      `json:"created_at"`
}

// Compute builds a report from predictions. Classes that neither occur in
// the truth nor get predicted are listed but left out of the macro averages.
// A class that is never predicted has precision 0.
func Compute(classes []string, preds []Prediction, k int) (*Report, error) {
	n := len(classes)
	if n == 0 || len(preds) == 0 {
		return nil, errors.Newf("cannot compute metrics for %d classes and %d predictions", n, len(preds)).
			Component("evaluate").
			Category(errors.CategoryValidation).
			Build()
	}

	r := &Report{
		Classes:   classes,
		Samples:   len(preds),
		TopK:      k,
		Confusion: make([][]int, n),
		PerClass:  make([]ClassMetrics, n),
		CreatedAt: time.Now().UTC(),
	}
	for i := range r.Confusion {
		r.Confusion[i] = make([]int, n)
	}

	correct, topHits := 0, 0
	for _, p := range preds {
		if p.True < 0 || p.True >= n || p.Predicted < 0 || p.Predicted >= n {
			return nil, errors.Newf("prediction for %s has class index outside 0..%d", p.Path, n-1).
				Component("evaluate").
				Category(errors.CategoryValidation).
				Build()
		}
		r.Confusion[p.True][p.Predicted]++
		if p.True == p.Predicted {
			correct++
		}
		for _, c := range p.TopK {
			if c == p.True {
				topHits++
				break
			}
		}
	}
	r.Accuracy = float64(correct) / float64(len(preds))
	r.TopKAccuracy = float64(topHits) / float64(len(preds))

	active := 0
	for c := range n {
		tp := r.Confusion[c][c]
		support, predicted := 0, 0
		for j := range n {
			support += r.Confusion[c][j]
			predicted += r.Confusion[j][c]
		}
		m := ClassMetrics{
			Class:     classes[c],
			Support:   support,
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.PerClass[c] = m

		if support > 0 || predicted > 0 {
			active++
			r.MacroPrecision += m.Precision
			r.MacroRecall += m.Recall
			r.MacroF1 += m.F1
		}
	}
	r.MacroPrecision /= float64(active)
	r.MacroRecall /= float64(active)
	r.MacroF1 /= float64(active)

	return r, r.Validate()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Validate checks that every ratio lies within [0, 1] and that the
// confusion matrix accounts for every sample.
func (r *Report) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s = %v", ErrInvalidReport, name, v)
		}
		return nil
	}

	errs := []error{
		check("accuracy", r.Accuracy),
		check("top_k_accuracy", r.TopKAccuracy),
		check("macro_precision", r.MacroPrecision),
		check("macro_recall", r.MacroRecall),
		check("macro_f1", r.MacroF1),
	}
	for _, m := range r.PerClass {
		errs = append(errs,
			check(m.Class+".precision", m.Precision),
			check(m.Class+".recall", m.Recall),
			check(m.Class+".f1", m.F1))
	}

	total := 0
	for _, row := range r.Confusion {
		if len(row) != len(r.Classes) {
			errs = append(errs, fmt.Errorf("%w: confusion matrix is not %dx%d", ErrInvalidReport, len(r.Classes), len(r.Classes)))
			break
		}
		for _, v := range row {
			total += v
		}
	}
	if len(r.Confusion) != len(r.Classes) || total != r.Samples {
		errs = append(errs, fmt.Errorf("%w: confusion matrix holds %d of %d samples", ErrInvalidReport, total, r.Samples))
	}

	if err := errors.Join(errs...); err != nil {
		return errors.New(err).
			Component("evaluate").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// GetLogger returns the evaluate logger
func GetLogger() logger.Logger {
	return logger.Global().Module("evaluate")
}
