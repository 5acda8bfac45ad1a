package reports

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/datastore"
	"github.com/wolfhowl/bioacoustics/internal/evaluate"
)

const timeLayout = "2006-01-02 15:04"

// Command creates the reports command for reading stored runs.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List and show stored evaluation reports",
	}
	cmd.AddCommand(listCommand(settings), showCommand(settings), gamesCommand(settings))
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List evaluation runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.Open(&settings.Output, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListEvaluations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs, 0 lists all")
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored report; unique id prefixes are accepted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.Open(&settings.Output, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetEvaluation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report, err := run.Report()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s  %s  checkpoint %s  corpus %s\n",
				run.ID, run.CreatedAt.Local().Format(timeLayout), run.Checkpoint, run.Corpus)
			fmt.Fprintln(out, evaluate.RenderTable(report))
			fmt.Fprintln(out, evaluate.RenderConfusion(report))
			return nil
		},
	}
}

func gamesCommand(settings *conf.Settings) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "games",
		Short: "List recorded game rounds, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.Open(&settings.Output, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.ListGameResults(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"When", "Classes", "Correct", "Score"})
			for _, g := range results {
				tw.AppendRow(table.Row{
					g.CreatedAt.Local().Format(timeLayout),
					g.Classes,
					fmt.Sprintf("%d/%d", g.Correct, g.Clips),
					fmt.Sprintf("%.1f%%", g.Score*100),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of rounds, 0 lists all")
	return cmd
}

func renderRuns(w io.Writer, runs []datastore.EvaluationRun) {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "When", "Model", "Samples", "Accuracy", "Top-k", "Macro F1"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			shortID(r.ID),
			r.CreatedAt.Local().Format(timeLayout),
			r.Family + "/" + r.Head,
			r.Samples,
			fmt.Sprintf("%.1f%%", r.Accuracy*100),
			fmt.Sprintf("%.1f%% (k=%d)", r.TopKAccuracy*100, r.TopK),
			fmt.Sprintf("%.1f%%", r.MacroF1*100),
		})
	}
	fmt.Fprintln(w, tw.Render())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
