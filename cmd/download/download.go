package download

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/hub"
	"github.com/wolfhowl/bioacoustics/internal/observability"
)

// Command creates the download command for fetching a hub dataset.
func Command(settings *conf.Settings, m *observability.Metrics) *cobra.Command {
	var prefix, outDir string

	cmd := &cobra.Command{
		Use:   "download <owner/name>",
		Short: "Download a labelled audio dataset from the hub",
		Long: `Download every audio file of a hub dataset repository into
<out>/<split>/<class>/. Labels come from metadata.csv when present, otherwise
from the directory names. Files already present with the same size are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := hub.ValidateRepo(args[0]); err != nil {
				return err
			}
			client := hub.New(settings.Hub, m.Hub)
			defer client.Close()

			opts := hub.DownloadOptions{
				Repo:   args[0],
				Prefix: prefix,
				OutDir: outDir,
			}
			var bar *progressbar.ProgressBar
			if isatty.IsTerminal(os.Stderr.Fd()) {
				opts.Progress = func(done, total int) {
					if bar == nil {
						bar = progressbar.NewOptions(total,
							progressbar.OptionSetWriter(os.Stderr),
							progressbar.OptionSetDescription("downloading"),
							progressbar.OptionShowCount(),
							progressbar.OptionClearOnFinish())
					}
					_ = bar.Set(done)
				}
			}

			res, err := client.Download(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if bar != nil {
				_ = bar.Finish()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d downloaded, %d already present, %d unlabelled, %d bytes -> %s\n",
				res.Downloaded, res.Skipped, res.Unlabeled, res.Bytes, outDir)
			return nil
		},
	}

	if err := setupFlags(cmd, &prefix, &outDir); err != nil {
		panic(err)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, prefix, outDir *string) error {
	cmd.Flags().StringVar(prefix, "path", "", "Only download files below this repository path")
	cmd.Flags().StringVarP(outDir, "out", "o", "data", "Output directory")
	cmd.Flags().String("revision", "", "Branch, tag or commit (default from hub.revision)")
	cmd.Flags().String("label-column", "", "metadata.csv column holding the class label")

	if err := viper.BindPFlag("hub.revision", cmd.Flags().Lookup("revision")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("hub.labelcolumn", cmd.Flags().Lookup("label-column")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
