package datastore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/wolfhowl/bioacoustics/internal/evaluate"
)

// EvaluationRun is a stored evaluation report. Rows are written once and
// never updated.
type EvaluationRun struct {
	ID             string    `gorm:"primaryKey;size:36"`
	CreatedAt      time.Time `gorm:"index"`
	Family         string    `gorm:"size:16;index"`
	Head           string    `gorm:"size:16"`
	Checkpoint     string    `gorm:"size:512"`
	Corpus         string    `gorm:"size:512"`
	Samples        int
	Accuracy       float64
	TopK           int
	TopKAccuracy   float64
	MacroPrecision float64
	MacroRecall    float64
	MacroF1        float64
	ReportJSON     string `gorm:"type:text"` // the full evaluate.Report
}

// Report decodes the stored report.
func (r *EvaluationRun) Report() (*evaluate.Report, error) {
	var rep evaluate.Report
	if err := json.Unmarshal([]byte(r.ReportJSON), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func newEvaluationRun(id string, r *evaluate.Report) (*EvaluationRun, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return &EvaluationRun{
		ID:             id,
		CreatedAt:      r.CreatedAt,
		Family:         r.Family,
		Head:           r.Head,
		Checkpoint:     r.Checkpoint,
		Corpus:         r.Corpus,
		Samples:        r.Samples,
		Accuracy:       r.Accuracy,
		TopK:           r.TopK,
		TopKAccuracy:   r.TopKAccuracy,
		MacroPrecision: r.MacroPrecision,
		MacroRecall:    r.MacroRecall,
		MacroF1:        r.MacroF1,
		ReportJSON:     string(data),
	}, nil
}

// GameResult is one validated round of the classification game
type GameResult struct {
	ID        string    `gorm:"primaryKey;size:36"`
	CreatedAt time.Time `gorm:"index"`
	Classes   string    `gorm:"size:512"` // comma separated, in zone order
	Clips     int
	Correct   int
	Score     float64
}

// ClassList splits Classes.
func (g *GameResult) ClassList() []string {
	if g.Classes == "" {
		return nil
	}
	return strings.Split(g.Classes, ",")
}
