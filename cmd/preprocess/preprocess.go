package preprocess

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/observability"
	"github.com/wolfhowl/bioacoustics/internal/preprocess"
)

// Command creates the preprocess command and its subcommands.
func Command(settings *conf.Settings, m *observability.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Prepare a corpus for training",
	}
	cmd.AddCommand(
		runCommand(settings, m),
		assembleCommand(settings, m),
		splitCommand(settings),
		pruneCommand(settings),
		checkCommand(settings),
	)
	return cmd
}

func runCommand(settings *conf.Settings, m *observability.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <in> <out>",
		Short: "Resample, downmix, trim, normalize and convert every recording",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := preprocess.New(settings.Preprocess, m.Preprocess)
			sum, err := p.Run(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), sum, args[1])
			return nil
		},
	}

	cmd.Flags().Int("target-rate", 0, "Output sample rate, 0 keeps the source rate")
	cmd.Flags().Int("workers", 0, "Classes processed concurrently, 0 uses physical cores")
	cmd.Flags().String("normalize", "", "Loudness normalization: none, peak or rms")
	cmd.Flags().Bool("trim-silence", false, "Strip leading and trailing silence")
	cmd.Flags().Bool("skip-unchanged", true, "Skip the run when inputs and settings are unchanged")
	mustBind(cmd, map[string]string{
		"preprocess.targetrate":     "target-rate",
		"preprocess.workers":        "workers",
		"preprocess.normalize.mode": "normalize",
		"preprocess.trim.silence":   "trim-silence",
		"preprocess.skipunchanged":  "skip-unchanged",
	})
	return cmd
}

func assembleCommand(settings *conf.Settings, m *observability.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assemble <in> <out>",
		Short: "Concatenate each class and cut it into fixed-length segments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settings.Preprocess
			s.Assemble.Enabled = true
			sum, err := preprocess.New(s, m.Preprocess).Run(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), sum, args[1])
			return nil
		},
	}

	cmd.Flags().Float64("segment-length", 0, "Seconds per output segment")
	cmd.Flags().Bool("keep-remaining", false, "Zero-pad and keep the final partial segment")
	mustBind(cmd, map[string]string{
		"preprocess.assemble.segmentlength": "segment-length",
		"preprocess.assemble.keepremaining": "keep-remaining",
	})
	return cmd
}

func splitCommand(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split <in> <out>",
		Short: "Split an unsplit <class>/<file> tree into train and test",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := dataset.Split(cmd.Context(), args[0], args[1], dataset.SplitOptions{
				TrainRatio: settings.Preprocess.Split.TrainRatio,
				Seed:       settings.Preprocess.Split.Seed,
			})
			if err != nil {
				return err
			}
			train, test := 0, 0
			for _, n := range res.Train {
				train += n
			}
			for _, n := range res.Test {
				test += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d classes: %d train, %d test -> %s\n", len(res.Train), train, test, args[1])
			return nil
		},
	}

	cmd.Flags().Float64("ratio", 0, "Fraction of each class that goes to train")
	cmd.Flags().Uint64("seed", 0, "Shuffle seed")
	mustBind(cmd, map[string]string{
		"preprocess.split.trainratio": "ratio",
		"preprocess.split.seed":       "seed",
	})
	return cmd
}

func pruneCommand(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune <root>",
		Short: "Remove classes with too few recordings in train or test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := settings.Preprocess.Prune
			res, err := dataset.Prune(args[0], dataset.PruneOptions{
				MinFiles: p.MinFiles,
				Rename:   p.Rename,
				BaseName: p.BaseName,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kept %d classes, removed %d\n", len(res.Kept), len(res.Removed))
			if len(res.Removed) > 0 {
				fmt.Fprintf(out, "removed: %s\n", strings.Join(res.Removed, ", "))
			}
			return nil
		},
	}

	cmd.Flags().Int("min-files", 0, "Minimum recordings per split")
	cmd.Flags().Bool("rename", false, "Rename surviving classes to <base-name>_1..N")
	cmd.Flags().String("base-name", "", "Base name used by --rename")
	mustBind(cmd, map[string]string{
		"preprocess.prune.minfiles": "min-files",
		"preprocess.prune.rename":   "rename",
		"preprocess.prune.basename": "base-name",
	})
	return cmd
}

func checkCommand(settings *conf.Settings) *cobra.Command {
	var rate int
	var contentHash bool

	cmd := &cobra.Command{
		Use:   "check <root>",
		Short: "Verify split disjointness, label closure and sample rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("rate") {
				rate = settings.Preprocess.TargetRate
			}
			ds, err := dataset.Scan(cmd.Context(), args[0], dataset.ScanOptions{ReadInfo: rate > 0})
			if err != nil {
				return err
			}
			report, err := dataset.Check(cmd.Context(), ds, dataset.CheckOptions{
				SampleRate:  rate,
				ContentHash: contentHash,
			})
			if report == nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, issue := range report.Issues {
				fmt.Fprintln(out, issue.String())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d recordings in %d classes, no issues\n", report.Recordings, report.Classes)
			return nil
		},
	}

	cmd.Flags().IntVar(&rate, "rate", 0, "Expected sample rate, 0 skips the check (default from preprocess.targetrate)")
	cmd.Flags().BoolVar(&contentHash, "hash", false, "Also detect identical audio stored under different names")
	return cmd
}

func printSummary(w io.Writer, sum *preprocess.Summary, out string) {
	if sum.Skipped {
		fmt.Fprintf(w, "%s is up to date (fingerprint %s)\n", out, sum.Fingerprint)
		return
	}
	fmt.Fprintf(w, "%d recordings in %d classes -> %d files in %s (%s)\n",
		sum.Inputs, sum.Classes, sum.Outputs, out, sum.Elapsed.Round(1e6))
}

// mustBind binds flags to viper keys. Keys must be bound by one command only.
func mustBind(cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("error binding flag %s: %v", flag, err))
		}
	}
}
