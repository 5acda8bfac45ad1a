package evaluate

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/dataset"
	"github.com/wolfhowl/bioacoustics/internal/datastore"
	"github.com/wolfhowl/bioacoustics/internal/evaluate"
	"github.com/wolfhowl/bioacoustics/internal/features"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/model"
	"github.com/wolfhowl/bioacoustics/internal/observability"
)

// Command creates the evaluate command.
func Command(settings *conf.Settings, m *observability.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <model.json> <corpus>",
		Short: "Score a checkpoint on <corpus>/test",
		Long: `Classify every recording of <corpus>/test, print per-class metrics and
the confusion matrix, and write report.json, confusion.csv and confusion.png
to <outputdir>/<run id>. With persistence enabled the report is also stored
in the configured database.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.NewString()
			ctx := logger.WithRunID(cmd.Context(), id)
			cp, err := model.Load(args[0])
			if err != nil {
				return err
			}
			ds, err := dataset.Scan(ctx, args[1], dataset.ScanOptions{})
			if err != nil {
				return err
			}

			ex, err := features.NewExtractor(cp.Features, settings.Features.Threads)
			if err != nil {
				return err
			}
			defer ex.Close()

			ev, err := evaluate.NewEvaluator(cp, ex, features.NewCache(settings.Features.CacheTTL, m.Training), m.Evaluation)
			if err != nil {
				return err
			}
			report, _, err := ev.Evaluate(ctx, ds, settings.Evaluate.TopK)
			if err != nil {
				return err
			}
			report.ID = id
			report.Checkpoint = args[0]

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, evaluate.RenderTable(report))
			fmt.Fprintln(out, evaluate.RenderConfusion(report))

			dir := filepath.Join(settings.Evaluate.OutputDir, report.ID)
			if _, err := evaluate.WriteOutputs(dir, report); err != nil {
				return err
			}
			fmt.Fprintf(out, "report %s written to %s\n", report.ID, dir)

			if !settings.Evaluate.Persist {
				return nil
			}
			store, err := datastore.Open(&settings.Output, m.Evaluation)
			if err != nil {
				return err
			}
			defer store.Close()
			if _, err := store.SaveEvaluation(ctx, report); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().Int("top-k", 0, "k for top-k accuracy")
	cmd.Flags().String("output-dir", "", "Directory for report files")
	cmd.Flags().Bool("persist", true, "Store the report in the database")
	for key, flag := range map[string]string{
		"evaluate.topk":      "top-k",
		"evaluate.outputdir": "output-dir",
		"evaluate.persist":   "persist",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("error binding flags: %v", err))
		}
	}
	return cmd
}
