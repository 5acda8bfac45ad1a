// conf/utils.go various util functions for configuration package
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"

	"github.com/wolfhowl/bioacoustics/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// If one of them already holds a config file, only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", AppName),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", AppName),
			filepath.Join("/etc", AppName),
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// SaveYAMLConfig writes settings to configPath atomically.
// Comments of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return writeFileAtomic(configPath, yamlData)
}

// WriteDefaultConfig writes the embedded default config to configPath unless it already exists.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return errors.Newf("config file %s already exists", configPath).
			Component("conf").
			Category(errors.CategoryConflict).
			Build()
	}
	data, err := DefaultConfig()
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}
	return writeFileAtomic(configPath, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directory for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, path); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// EffectiveWorkers resolves a configured worker count, where 0 means the
// number of physical CPU cores.
func EffectiveWorkers(configured int) int {
	if configured > 0 {
		return configured
	}
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
