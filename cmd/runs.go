package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/report"
	"github.com/subliminal-labs/roleprobe/internal/store"
)

var runsFlags struct {
	status  string
	concept string
	limit   int
	offset  int
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted ablation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, most recent first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.RunFilter{
			Status:  model.RunStatus(runsFlags.status),
			Concept: runsFlags.concept,
			Limit:   runsFlags.limit,
			Offset:  runsFlags.offset,
		}
		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tSTATUS\tCONCEPT\tMODEL\tCELLS\tEVALUATED\tSKIPPED\tCREATED")
		for _, run := range runs {
			cells, evaluated, skipped := 0, 0, 0
			if run.Result != nil {
				cells = len(run.Result.Cells)
				evaluated = run.Result.Evaluated
				skipped = run.Result.Skipped
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				run.ID, run.Status, run.Config.Concept, run.Config.Model,
				cells, evaluated, skipped, run.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		return report.WriteJSON(os.Stdout, run)
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsFlags.status, "status", "", "filter by run status")
	runsListCmd.Flags().StringVar(&runsFlags.concept, "concept", "", "filter by target concept")
	runsListCmd.Flags().IntVar(&runsFlags.limit, "limit", 20, "max runs to list")
	runsListCmd.Flags().IntVar(&runsFlags.offset, "offset", 0, "offset into the listing")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
