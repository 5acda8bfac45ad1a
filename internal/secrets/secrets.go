// Package secrets resolves credentials given as literals, ${VAR}
// references or files such as mounted container secrets.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
)

// maxFileSize bounds secret files; tokens and passwords are small
const maxFileSize = 64 * 1024

// Expand replaces ${VAR} and ${VAR:-fallback} references with environment
// values. A reference without a fallback to an unset variable is an error.
func Expand(s string) (string, error) {
	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if !hasFallback {
			missing = append(missing, name)
		}
		return fallback
	})
	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile returns the contents of a secret file without trailing newlines.
// Files readable by group or other are accepted with a warning.
func ReadFile(path string) (string, error) {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			FileContext(path, 0).
			Build()
	}
	switch {
	case !info.Mode().IsRegular():
		return "", secretFileError("secret path is not a regular file", path)
	case info.Size() > maxFileSize:
		return "", secretFileError("secret file is too large", path)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or other",
			logger.String("path", path),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			FileContext(path, info.Size()).
			Build()
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretFileError("secret file is empty", path)
	}
	return secret, nil
}

// Resolve returns the secret from file when set, otherwise value with
// environment references expanded.
func Resolve(file, value string) (string, error) {
	if file != "" {
		return ReadFile(file)
	}
	if value == "" {
		return "", nil
	}
	return Expand(value)
}

func secretFileError(msg, path string) error {
	return errors.Newf("%s", msg).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("path", path).
		Build()
}

// GetLogger returns the secrets logger
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}
