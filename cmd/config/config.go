package config

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wolfhowl/bioacoustics/internal/conf"
)

const redacted = "[REDACTED]"

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and write configuration files",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "dump",
			Short: "Print the effective settings as YAML with secrets redacted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return dump(cmd.OutOrStdout(), settings)
			},
		},
		&cobra.Command{
			Use:   "init [path]",
			Short: "Write the commented default config.yaml",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := "config.yaml"
				if len(args) == 1 {
					path = args[0]
				}
				if err := conf.WriteDefaultConfig(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filepath.Clean(path))
				return nil
			},
		},
		&cobra.Command{
			Use:   "save <path>",
			Short: "Write the effective settings, flags and environment included",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return conf.SaveYAMLConfig(args[0], settings)
			},
		},
	)
	return cmd
}

func dump(w io.Writer, settings *conf.Settings) error {
	s := *settings
	if s.Hub.Token != "" {
		s.Hub.Token = redacted
	}
	if s.Output.MySQL.Password != "" {
		s.Output.MySQL.Password = redacted
	}
	if s.Telemetry.SentryDSN != "" {
		s.Telemetry.SentryDSN = redacted
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&s); err != nil {
		return fmt.Errorf("error encoding settings: %w", err)
	}
	return enc.Close()
}
