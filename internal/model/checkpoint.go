package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/features"
	"github.com/wolfhowl/bioacoustics/internal/logger"
)

// CheckpointVersion is the current checkpoint format
const CheckpointVersion = 1

var (
	// ErrCheckpointExists is returned when Save would overwrite a checkpoint
	ErrCheckpointExists = errors.NewStd("checkpoint already exists")
	// ErrInvalidCheckpoint is returned for checkpoints that fail validation
	ErrInvalidCheckpoint = errors.NewStd("invalid checkpoint")
)

// Checkpoint is a trained head with everything needed to apply it
type Checkpoint struct {
	Version      int             `json:"version"`
	Family       string          `json:"family"`
	Head         string          `json:"head"`
	Classes      []string        `json:"classes"`
	Features     features.Params `json:"features"`
	Standardizer Standardizer    `json:"standardization"`
	Softmax      *Softmax        `json:"softmax,omitempty"`
	Centroid     *Centroid       `json:"centroid,omitempty"`
	Summary      Summary         `json:"summary"`
}

// Summary records how a checkpoint was trained
type Summary struct {
	Options       Options       `json:"options"`
	Samples       int           `json:"samples"`
	TrainAccuracy float64       `json:"train_accuracy"`
	FinalLoss     float64       `json:"final_loss"`
	TrainedAt     time.Time     `json:"trained_at"`
	Duration      time.Duration `json:"duration_ns"`
}

func (c *Checkpoint) head() Head {
	if c.Softmax != nil {
		return c.Softmax
	}
	return c.Centroid
}

// Scores standardizes an embedding and scores it against every class.
func (c *Checkpoint) Scores(embedding []float64) []float64 {
	return c.head().Scores(c.Standardizer.Apply(embedding))
}

// Predict returns the best class index and the indices of the k best classes.
func (c *Checkpoint) Predict(embedding []float64, k int) (int, []int) {
	scores := c.Scores(embedding)
	return argmax(scores), topK(scores, k)
}

// ClassIndex returns the index of class, or -1.
func (c *Checkpoint) ClassIndex(class string) int {
	return slices.Index(c.Classes, class)
}

// Dim returns the embedding length the checkpoint expects.
func (c *Checkpoint) Dim() int {
	return len(c.Standardizer.Mean)
}

// Validate checks internal consistency.
func (c *Checkpoint) Validate() error {
	var problems []string
	if c.Version != CheckpointVersion {
		problems = append(problems, fmt.Sprintf("unsupported version %d", c.Version))
	}
	if c.Family != conf.FamilyBirdNET && c.Family != conf.FamilyAST {
		problems = append(problems, fmt.Sprintf("unknown family %q", c.Family))
	}
	if len(c.Classes) < 2 {
		problems = append(problems, "fewer than two classes")
	}
	sorted := slices.Clone(c.Classes)
	slices.Sort(sorted)
	if len(slices.Compact(sorted)) != len(c.Classes) {
		problems = append(problems, "duplicate class names")
	}
	dim := c.Dim()
	if dim == 0 || len(c.Standardizer.Std) != dim {
		problems = append(problems, "standardization vectors missing or mismatched")
	}

	switch c.Head {
	case conf.HeadSoftmax:
		if c.Softmax == nil || len(c.Softmax.Weights) != len(c.Classes) || len(c.Softmax.Bias) != len(c.Classes) {
			problems = append(problems, "softmax weights do not match class list")
		} else if slices.ContainsFunc(c.Softmax.Weights, func(w []float64) bool { return len(w) != dim }) {
			problems = append(problems, "softmax weights do not match embedding size")
		}
	case conf.HeadCentroid:
		if c.Centroid == nil || len(c.Centroid.Templates) != len(c.Classes) {
			problems = append(problems, "centroid templates do not match class list")
		} else if slices.ContainsFunc(c.Centroid.Templates, func(t []float64) bool { return len(t) != dim }) {
			problems = append(problems, "centroid templates do not match embedding size")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown head %q", c.Head))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(fmt.Errorf("%w: %v", ErrInvalidCheckpoint, problems)).
		Component("model").
		Category(errors.CategoryValidation).
		Build()
}

// Save writes the checkpoint as JSON. An existing file is only replaced
// when overwrite is set.
func (c *Checkpoint) Save(path string, overwrite bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return errors.New(fmt.Errorf("%w: %s", ErrCheckpointExists, path)).
			Component("model").
			Category(errors.CategoryConflict).
			Build()
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("model").
			Category(errors.CategoryGeneric).
			Context("operation", "marshal-checkpoint").
			Build()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkpointFileError(err, path)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return checkpointFileError(err, path)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return checkpointFileError(err, path)
	}
	if err := tmp.Close(); err != nil {
		return checkpointFileError(err, path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return checkpointFileError(err, path)
	}

	GetLogger().Info("checkpoint saved",
		logger.String("path", path),
		logger.String("family", c.Family),
		logger.String("head", c.Head),
		logger.Int("classes", len(c.Classes)))
	return nil
}

// Load reads and validates a checkpoint.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Component("model").
			Category(category).
			FileContext(path, 0).
			Build()
	}

	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.New(fmt.Errorf("%w: %w", ErrInvalidCheckpoint, err)).
			Component("model").
			Category(errors.CategoryValidation).
			FileContext(path, int64(len(data))).
			Build()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func checkpointFileError(err error, path string) error {
	return errors.New(err).
		Component("model").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Build()
}
