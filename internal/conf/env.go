// env.go - environment variable configuration
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding maps a config key to an explicit environment variable
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// getEnvBindings lists variables that do not follow the BIOACOUSTICS_ prefix scheme
func getEnvBindings() []envBinding {
	return []envBinding{
		{"hub.token", "HF_TOKEN", nil},
		{"hub.endpoint", "HF_ENDPOINT", validateEnvURL},
		{"telemetry.sentrydsn", "SENTRY_DSN", nil},
		{"features.threads", "BIOACOUSTICS_THREADS", validateEnvThreads},
	}
}

// bindEnvVars enables BIOACOUSTICS_<SECTION>_<KEY> overrides and the explicit bindings.
func bindEnvVars() error {
	viper.SetEnvPrefix(strings.ToUpper(AppName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvURL(value string) error {
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return fmt.Errorf("must start with http:// or https://")
	}
	return nil
}

func validateEnvThreads(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must be zero or positive")
	}
	return nil
}
