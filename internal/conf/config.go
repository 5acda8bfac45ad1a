// Package conf provides configuration management for the bioacoustics toolkit.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// AppName names the config directories and the environment prefix
const AppName = "bioacoustics"

// Settings contains all configuration options
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug logging

	Logging    logger.LoggingConfig `yaml:"logging"`
	Hub        HubSettings          `yaml:"hub"`
	Preprocess PreprocessSettings   `yaml:"preprocess"`
	Features   FeatureSettings      `yaml:"features"`
	Train      TrainSettings        `yaml:"train"`
	Evaluate   EvaluateSettings     `yaml:"evaluate"`
	Game       GameSettings         `yaml:"game"`
	Output     OutputSettings       `yaml:"output"`
	Metrics    MetricsSettings      `yaml:"metrics"`
	Telemetry  TelemetrySettings    `yaml:"telemetry"`
}

// HubSettings configures the remote dataset hub
type HubSettings struct {
	Endpoint          string            `yaml:"endpoint"`          // hub base URL
	Token             string            `yaml:"token"`             // bearer token for gated datasets, ${VAR} references expand
	TokenFile         string            `yaml:"tokenfile"`         // file holding the token, takes precedence over token
	Revision          string            `yaml:"revision"`          // branch, tag or commit
	LabelColumn       string            `yaml:"labelcolumn"`       // metadata.csv column holding the class label
	SplitAliases      map[string]string `yaml:"splitaliases"`      // hub split name -> local split name
	Extensions        []string          `yaml:"extensions"`        // audio file extensions to fetch
	Timeout           time.Duration     `yaml:"timeout"`           // per-request timeout
	RequestsPerSecond float64           `yaml:"requestspersecond"` // client-side rate limit
}

// PreprocessSettings configures the preprocessing pipeline
type PreprocessSettings struct {
	TargetRate    int               `yaml:"targetrate"`    // output sample rate, 0 keeps the source rate
	Mono          bool              `yaml:"mono"`          // downmix to a single channel
	Trim          TrimSettings      `yaml:"trim"`          // silence trimming and truncation
	Normalize     NormalizeSettings `yaml:"normalize"`     // loudness normalization
	Assemble      AssembleSettings  `yaml:"assemble"`      // per-class concatenation into segments
	Split         SplitSettings     `yaml:"split"`         // train/test split
	Prune         PruneSettings     `yaml:"prune"`         // removal of under-populated classes
	BitDepth      int               `yaml:"bitdepth"`      // output PCM bit depth
	Workers       int               `yaml:"workers"`       // concurrent classes, 0 uses physical cores
	SkipUnchanged bool              `yaml:"skipunchanged"` // skip the run when the manifest fingerprint matches
}

// TrimSettings configures silence trimming
type TrimSettings struct {
	Silence     bool    `yaml:"silence"`     // strip leading and trailing silence
	ThresholdDB float64 `yaml:"thresholddb"` // silence threshold in dBFS
	MaxLength   float64 `yaml:"maxlength"`   // truncate to this many seconds, 0 disables
}

// NormalizeSettings configures loudness normalization
type NormalizeSettings struct {
	Mode     string  `yaml:"mode"`     // none, peak or rms
	PeakDBFS float64 `yaml:"peakdbfs"` // target peak level
	RMSDBFS  float64 `yaml:"rmsdbfs"`  // target RMS level
}

// AssembleSettings configures class-wise concatenation and segmentation
type AssembleSettings struct {
	Enabled       bool    `yaml:"enabled"`
	SegmentLength float64 `yaml:"segmentlength"` // seconds per output segment
	KeepRemaining bool    `yaml:"keepremaining"` // zero-pad and keep the final partial segment
}

// SplitSettings configures the train/test split
type SplitSettings struct {
	TrainRatio float64 `yaml:"trainratio"`
	Seed       uint64  `yaml:"seed"`
}

// PruneSettings configures class pruning and renaming
type PruneSettings struct {
	MinFiles int    `yaml:"minfiles"` // minimum recordings per split
	Rename   bool   `yaml:"rename"`   // rename survivors to <basename>_1..N
	BaseName string `yaml:"basename"`
}

// FeatureSettings configures the feature front ends
type FeatureSettings struct {
	CacheTTL time.Duration       `yaml:"cachettl"` // lifetime of cached embeddings
	BirdNET  FrontEndSettings    `yaml:"birdnet"`
	AST      FrontEndSettings    `yaml:"ast"`
	Threads  int                 `yaml:"threads"` // interpreter threads, 0 uses physical cores
	Mel      map[string]MelShape `yaml:"mel"`     // per-family mel overrides
}

// FrontEndSettings points at an optional exported TFLite front end.
// When ModelPath is empty the built-in log-mel front end is used.
type FrontEndSettings struct {
	ModelPath string `yaml:"modelpath"`
}

// MelShape overrides the log-mel parameters of a family
type MelShape struct {
	Bands int     `yaml:"bands"`
	FFT   int     `yaml:"fft"`
	Hop   int     `yaml:"hop"`
	MinHz float64 `yaml:"minhz"`
	MaxHz float64 `yaml:"maxhz"`
}

// TrainSettings holds default hyperparameters
type TrainSettings struct {
	Family       string  `yaml:"family"` // birdnet or ast
	Head         string  `yaml:"head"`   // softmax or centroid
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learningrate"`
	BatchSize    int     `yaml:"batchsize"`
	L2           float64 `yaml:"l2"`
	Seed         uint64  `yaml:"seed"`
}

// EvaluateSettings configures evaluation outputs
type EvaluateSettings struct {
	TopK      int    `yaml:"topk"`
	OutputDir string `yaml:"outputdir"` // report.json, confusion.csv and confusion.png land here
	Persist   bool   `yaml:"persist"`   // store the report in the database
}

// GameSettings configures the classification game
type GameSettings struct {
	Classes         []string `yaml:"classes"`
	SamplesPerClass int      `yaml:"samplesperclass"`
	TempDir         string   `yaml:"tempdir"` // empty uses the OS temp directory
	Record          bool     `yaml:"record"`  // store round results in the database
}

// OutputSettings selects the report database
type OutputSettings struct {
	SQLite struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"sqlite"`
	MySQL struct {
		Enabled      bool   `yaml:"enabled"`
		Username     string `yaml:"username"`
		Password     string `yaml:"password"`
		PasswordFile string `yaml:"passwordfile"`
		Database     string `yaml:"database"`
		Host         string `yaml:"host"`
		Port         string `yaml:"port"`
	} `yaml:"mysql"`
}

// MetricsSettings configures the Prometheus textfile export
type MetricsSettings struct {
	Textfile string `yaml:"textfile"` // node-exporter textfile path, empty disables
}

// TelemetrySettings configures Sentry error reporting
type TelemetrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	SentryDSN   string `yaml:"sentrydsn"`
	Environment string `yaml:"environment"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file and environment variables into Settings.
// An explicit configFile takes precedence over the default search paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// resolveSecrets replaces credentials with the contents of their secret
// files or their expanded environment references.
func resolveSecrets(settings *Settings) error {
	token, err := secrets.Resolve(settings.Hub.TokenFile, settings.Hub.Token)
	if err != nil {
		return fmt.Errorf("error resolving hub token: %w", err)
	}
	settings.Hub.Token = token

	mysql := &settings.Output.MySQL
	password, err := secrets.Resolve(mysql.PasswordFile, mysql.Password)
	if err != nil {
		return fmt.Errorf("error resolving mysql password: %w", err)
	}
	mysql.Password = password
	return nil
}

// initViper registers defaults and environment bindings and reads the config file.
// A missing config file is not an error; defaults apply.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// DefaultConfig returns the embedded, commented default config.yaml.
func DefaultConfig() ([]byte, error) {
	return fs.ReadFile(configFiles, "config.yaml")
}

// GetLogger returns the config package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
