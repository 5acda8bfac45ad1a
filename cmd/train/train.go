package train

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/features"
	"github.com/wolfhowl/bioacoustics/internal/model"
	"github.com/wolfhowl/bioacoustics/internal/observability"
)

// Command creates the train command.
func Command(settings *conf.Settings, m *observability.Metrics) *cobra.Command {
	var out string
	var force bool

	cmd := &cobra.Command{
		Use:   "train <corpus>",
		Short: "Train a classification head on <corpus>/train",
		Long: `Embed every recording of <corpus>/train with the selected front end and
fit a softmax or centroid head. The checkpoint is written as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := model.OptionsFromSettings(&settings.Train)
			if err := opts.Validate(); err != nil {
				return err
			}

			ds, err := dataset.Scan(ctx, args[0], dataset.ScanOptions{})
			if err != nil {
				return err
			}
			if _, err := dataset.Check(ctx, ds, dataset.CheckOptions{}); err != nil {
				return err
			}

			params, err := features.ParamsFor(opts.Family, &settings.Features)
			if err != nil {
				return err
			}
			ex, err := features.NewExtractor(params, settings.Features.Threads)
			if err != nil {
				return err
			}
			defer ex.Close()

			cache := features.NewCache(settings.Features.CacheTTL, m.Training)
			cp, err := model.NewTrainer(ex, cache, m.Training).Train(ctx, ds, opts)
			if err != nil {
				return err
			}
			if err := cp.Save(out, force); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s head on %d recordings, %d classes, train accuracy %.1f%% -> %s\n",
				cp.Family, cp.Head, cp.Summary.Samples, len(cp.Classes), cp.Summary.TrainAccuracy*100, out)
			return nil
		},
	}

	if err := setupFlags(cmd, &out, &force); err != nil {
		panic(err)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, out *string, force *bool) error {
	cmd.Flags().StringVarP(out, "out", "o", "model.json", "Checkpoint path")
	cmd.Flags().BoolVarP(force, "force", "f", false, "Overwrite an existing checkpoint")
	cmd.Flags().String("family", "", "Front end family: birdnet or ast")
	cmd.Flags().String("head", "", "Classification head: softmax or centroid")
	cmd.Flags().Int("epochs", 0, "Training epochs (softmax)")
	cmd.Flags().Float64("lr", 0, "Learning rate (softmax)")
	cmd.Flags().Int("batch-size", 0, "Mini-batch size (softmax)")
	cmd.Flags().Uint64("seed", 0, "Shuffle seed")

	for key, flag := range map[string]string{
		"train.family":       "family",
		"train.head":         "head",
		"train.epochs":       "epochs",
		"train.learningrate": "lr",
		"train.batchsize":    "batch-size",
		"train.seed":         "seed",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
