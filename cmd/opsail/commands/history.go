package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsailor/opsail/pkg/history"
)

func newHistoryCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded playbook runs",
		Example: `  # List recent runs
  opsail history --db runs.db

  # Show the task results of one run
  opsail history --db runs.db --run 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.NewStore(dbPath)
			if err != nil {
				return err
			}
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if runID != "" {
				tasks, err := store.TasksForRun(cmd.Context(), runID)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					fmt.Fprintf(out, "%-24s %-12s %-30s %s\n", t.Host, t.Status, t.Task, t.Msg)
				}
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				finished := "running"
				if r.FinishedAt.Valid {
					finished = r.FinishedAt.Time.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "%s  %-30s started=%s finished=%s ok=%d changed=%d failed=%d unreachable=%d skipped=%d\n",
					r.ID, r.Playbook, r.StartedAt.Format("2006-01-02 15:04:05"), finished,
					r.OK, r.Changed, r.Failed, r.Unreachable, r.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "runs.db", "history database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show task results for this run id")

	return cmd
}
