package preprocess

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
)

const (
	// ManifestFile records the fingerprint of the last successful run
	ManifestFile = ".preprocess.json"
	lockFile     = ".preprocess.lock"
)

type manifest struct {
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	Inputs      int       `json:"inputs"`
	Outputs     []string  `json:"outputs"` // relative to the output directory
}

// fingerprint hashes the settings that change output bytes together with the
// name, size and modification time of every input.
func fingerprint(s conf.PreprocessSettings, ds *dataset.Dataset) (string, error) {
	s.Workers = 0
	s.SkipUnchanged = false
	s.Split = conf.SplitSettings{}
	s.Prune = conf.PruneSettings{}

	settingsJSON, err := json.Marshal(s)
	if err != nil {
		return "", err
	}

	d := xxhash.New()
	_, _ = d.Write(settingsJSON)
	for _, r := range ds.Recordings {
		fi, err := os.Stat(r.Path)
		if err != nil {
			return "", errors.New(err).
				Component("preprocess").
				Category(errors.CategoryFileIO).
				FileContext(r.Path, 0).
				Build()
		}
		_, _ = d.WriteString(r.Split + "/" + r.Class + "/" + r.Name)
		_, _ = d.WriteString(strconv.FormatInt(fi.Size(), 10))
		_, _ = d.WriteString(strconv.FormatInt(fi.ModTime().UnixNano(), 10))
	}
	return strconv.FormatUint(d.Sum64(), 16), nil
}

// loadManifest returns an empty manifest when none exists.
func loadManifest(outDir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(outDir, ManifestFile)) //nolint:gosec // fixed name under the output dir
	if os.IsNotExist(err) {
		return &manifest{}, nil
	}
	if err != nil {
		return nil, manifestError(err, outDir)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		GetLogger().Warn("ignoring unreadable manifest", logger.String("dir", outDir), logger.Error(err))
		return &manifest{}, nil
	}
	return &m, nil
}

// matches reports whether the manifest has fingerprint fp and all of its
// outputs still exist.
func (m *manifest) matches(fp, outDir string) bool {
	if m.Fingerprint == "" || m.Fingerprint != fp {
		return false
	}
	for _, rel := range m.Outputs {
		if _, err := os.Stat(filepath.Join(outDir, rel)); err != nil {
			return false
		}
	}
	return true
}

// removeOutputs deletes the files written by the previous run.
func (m *manifest) removeOutputs(outDir string) error {
	for _, rel := range m.Outputs {
		if err := os.Remove(filepath.Join(outDir, rel)); err != nil && !os.IsNotExist(err) {
			return manifestError(err, outDir)
		}
	}
	if len(m.Outputs) > 0 {
		GetLogger().Debug("removed previous outputs", logger.Int("count", len(m.Outputs)))
	}
	return nil
}

func (m *manifest) save(outDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return manifestError(err, outDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return manifestError(err, outDir)
	}
	if err := os.WriteFile(filepath.Join(outDir, ManifestFile), data, 0o644); err != nil { //nolint:gosec // manifest is not sensitive
		return manifestError(err, outDir)
	}
	return nil
}

// lockOutput takes an exclusive advisory lock on outDir for the run.
func lockOutput(outDir string) (func(), error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, manifestError(err, outDir)
	}
	lock := flock.New(filepath.Join(outDir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, manifestError(fmt.Errorf("acquire lock: %w", err), outDir)
	}
	if !ok {
		return nil, errors.New(ErrLocked).
			Component("preprocess").
			Category(errors.CategoryConflict).
			Context("dir", outDir).
			Build()
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			GetLogger().Warn("failed to release output lock", logger.Error(err))
		}
		_ = os.Remove(lock.Path())
	}, nil
}

func manifestError(err error, dir string) error {
	return errors.New(err).
		Component("preprocess").
		Category(errors.CategoryFileIO).
		Context("dir", dir).
		Build()
}
