package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfhowl/bioacoustics/cmd/config"
	"github.com/wolfhowl/bioacoustics/cmd/download"
	"github.com/wolfhowl/bioacoustics/cmd/evaluate"
	"github.com/wolfhowl/bioacoustics/cmd/game"
	"github.com/wolfhowl/bioacoustics/cmd/preprocess"
	"github.com/wolfhowl/bioacoustics/cmd/reports"
	"github.com/wolfhowl/bioacoustics/cmd/train"
	"github.com/wolfhowl/bioacoustics/internal/buildinfo"
	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability"
	"github.com/wolfhowl/bioacoustics/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates the root command. settings is filled from defaults,
// the config file, environment and bound flags before any subcommand runs.
func RootCommand(settings *conf.Settings, m *observability.Metrics, build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           conf.AppName,
		Short:         "Bioacoustic corpus preparation, classifier training and evaluation",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}

	rootCmd.AddCommand(
		download.Command(settings, m),
		preprocess.Command(settings, m),
		train.Command(settings, m),
		evaluate.Command(settings, m),
		reports.Command(settings),
		game.Command(settings, m),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings, configFile, build)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Flush(telemetryFlushTimeout)
		return m.WriteTextfile(settings.Metrics.Textfile)
	}

	return rootCmd
}

// initialize loads settings, installs the global logger and enables error
// telemetry. It runs after flags are parsed so bound flags take precedence.
func initialize(settings *conf.Settings, configFile string, build *buildinfo.Context) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	logger.SetGlobal(central)

	if _, err := telemetry.Init(&settings.Telemetry, build.Version(), nil); err != nil {
		return err
	}
	return nil
}
