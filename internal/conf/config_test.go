package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("HF_TOKEN", "")

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SampleRate, s.Preprocess.TargetRate)
	assert.Equal(t, "https://huggingface.co", s.Hub.Endpoint)
	assert.Equal(t, SplitTest, s.Hub.SplitAliases["validation"])
	assert.InDelta(t, 0.8, s.Preprocess.Split.TrainRatio, 1e-9)
	assert.Equal(t, uint64(42), s.Preprocess.Split.Seed)
	assert.Equal(t, FamilyBirdNET, s.Train.Family)
	assert.Equal(t, 5, s.Game.SamplesPerClass)
	assert.Equal(t, "info", s.Logging.DefaultLevel)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
	assert.Same(t, s, GetSettings())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
debug: true
preprocess:
  targetrate: 16000
  normalize:
    mode: peak
train:
  family: ast
  head: centroid
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("HF_TOKEN", "hf_secret")
	t.Setenv("BIOACOUSTICS_EVALUATE_TOPK", "5")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16000, s.Preprocess.TargetRate)
	assert.Equal(t, NormalizePeak, s.Preprocess.Normalize.Mode)
	assert.Equal(t, FamilyAST, s.Train.Family)
	assert.Equal(t, HeadCentroid, s.Train.Head)
	assert.Equal(t, "hf_secret", s.Hub.Token)
	assert.Equal(t, 5, s.Evaluate.TopK)
	assert.Equal(t, "debug", s.Logging.DefaultLevel)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("train:\n  family: resnet\npreprocess:\n  split:\n    trainratio: 1.5\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		s := &Settings{}
		s.Hub.Endpoint = "https://huggingface.co"
		s.Hub.Revision = "main"
		s.Preprocess.TargetRate = SampleRate
		s.Preprocess.BitDepth = 16
		s.Preprocess.Normalize.Mode = NormalizeNone
		s.Preprocess.Split.TrainRatio = 0.8
		s.Train = TrainSettings{Family: FamilyAST, Head: HeadSoftmax, Epochs: 1, LearningRate: 0.1, BatchSize: 8}
		s.Evaluate.TopK = 1
		s.Game.SamplesPerClass = 5
		return s
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		errs   int
	}{
		{"valid", func(*Settings) {}, 0},
		{"bad endpoint", func(s *Settings) { s.Hub.Endpoint = "ftp://x" }, 1},
		{"bad alias", func(s *Settings) { s.Hub.SplitAliases = map[string]string{"dev": "holdout"} }, 1},
		{"low rate", func(s *Settings) { s.Preprocess.TargetRate = 100 }, 1},
		{"bit depth", func(s *Settings) { s.Preprocess.BitDepth = 12 }, 1},
		{"normalize", func(s *Settings) { s.Preprocess.Normalize.Mode = "lufs" }, 1},
		{"assemble length", func(s *Settings) { s.Preprocess.Assemble.Enabled = true }, 1},
		{"rename without base", func(s *Settings) { s.Preprocess.Prune.Rename = true }, 1},
		{"both databases", func(s *Settings) {
			s.Output.SQLite.Enabled = true
			s.Output.SQLite.Path = "x.db"
			s.Output.MySQL.Enabled = true
			s.Output.MySQL.Host = "h"
			s.Output.MySQL.Database = "d"
		}, 1},
		{"too many game classes", func(s *Settings) {
			s.Game.Classes = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
		}, 1},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }, 1},
		{"training", func(s *Settings) { s.Train.Epochs = 0; s.Train.BatchSize = 0 }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.errs == 0 {
				assert.NoError(t, err)
				return
			}
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Len(t, ve.Errors, tt.errs)
		})
	}
}

func TestLoadResolvesSecrets(t *testing.T) {
	resetViper(t)
	t.Setenv("HF_TOKEN", "")
	t.Setenv("BIO_DB_PASSWORD", "from-env")

	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "hf_token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("hf_from_file\n"), 0o600))

	path := filepath.Join(dir, "config.yaml")
	content := "hub:\n  token: ignored\n  tokenfile: " + tokenFile + "\n" +
		"output:\n  mysql:\n    password: ${BIO_DB_PASSWORD}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hf_from_file", s.Hub.Token)
	assert.Equal(t, "from-env", s.Output.MySQL.Password)
}

func TestEmbeddedDefaultConfigMatchesDefaults(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))
	require.Error(t, WriteDefaultConfig(path), "existing config must not be overwritten")

	fromFile, err := Load(path)
	require.NoError(t, err)

	viper.Reset()
	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, []byte("{}\n"), 0o600))
	fromDefaults, err := Load(emptyPath)
	require.NoError(t, err)

	assert.Equal(t, fromDefaults.Preprocess, fromFile.Preprocess)
	assert.Equal(t, fromDefaults.Train, fromFile.Train)
	assert.Equal(t, fromDefaults.Hub.Extensions, fromFile.Hub.Extensions)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	s := &Settings{Train: TrainSettings{Family: FamilyAST, Epochs: 7}}

	require.NoError(t, SaveYAMLConfig(path, s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Settings
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, FamilyAST, back.Train.Family)
	assert.Equal(t, 7, back.Train.Epochs)
}

func TestEffectiveWorkers(t *testing.T) {
	assert.Equal(t, 3, EffectiveWorkers(3))
	assert.Positive(t, EffectiveWorkers(0))
}
