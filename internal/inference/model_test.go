package inference

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfhowl/bioacoustics/internal/errors"
)

func TestLoadMissingModel(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.tflite"), "ast", 1)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
}

func TestRunValidatesInput(t *testing.T) {
	t.Parallel()

	m := &Model{family: "birdnet", inputSize: 3}

	_, err := m.Run([]float32{1, 2})
	require.ErrorIs(t, err, ErrInputSize)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	// no interpreter behind it
	_, err = m.Run([]float32{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	m.Close()
	m.Close()
}
