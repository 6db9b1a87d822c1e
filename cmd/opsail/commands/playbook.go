package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsailor/opsail/pkg/history"
	"github.com/opsailor/opsail/pkg/playbook"
)

func newPlaybookCommand() *cobra.Command {
	var (
		limit       string
		checkMode   bool
		forks       int
		tags        []string
		historyPath string
		failFast    bool
	)

	cmd := &cobra.Command{
		Use:   "playbook <playbook.yml>",
		Short: "Run a playbook against the inventory",
		Example: `  # Run a playbook
  opsail playbook site.yml -i hosts

  # Dry run against a subset of hosts
  opsail playbook site.yml --limit webservers --check

  # Run 10 hosts at a time and record the run
  opsail playbook site.yml --forks 10 --history runs.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}

			inv, err := loadInventory(log)
			if err != nil {
				log.WithError(err).Error("inventory load failed")
				return err
			}

			pb, err := playbook.Load(args[0])
			if err != nil {
				log.WithError(err).Error("playbook load failed")
				return err
			}
			pb.FailFast = failFast

			opts := playbook.Options{
				Limit:     limit,
				CheckMode: checkMode,
				Forks:     forks,
				Tags:      tags,
			}

			if historyPath != "" {
				store, err := history.NewStore(historyPath)
				if err != nil {
					return err
				}
				if err := store.Init(cmd.Context()); err != nil {
					return err
				}
				defer store.Close()
				opts.History = store
			}

			summary, err := newRunner(log).Run(cmd.Context(), pb, inv, opts)
			if err != nil {
				return err
			}
			if summary.HasFailures() {
				return fmt.Errorf("playbook finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&limit, "limit", "l", "", "restrict matched hosts to this pattern")
	cmd.Flags().BoolVarP(&checkMode, "check", "C", false, "evaluate without executing modules")
	cmd.Flags().IntVar(&forks, "forks", 1, "hosts to run on concurrently")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "only run tasks with these tags")
	cmd.Flags().StringVar(&historyPath, "history", "", "record the run to this sqlite database")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "abort the whole run when a play fails")

	return cmd
}
