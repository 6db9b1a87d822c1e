package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsailor/opsail/pkg/playbook"
)

func newAdhocCommand() *cobra.Command {
	var (
		module string
		args   string
		limit  string
		forks  int
	)

	cmd := &cobra.Command{
		Use:   "adhoc <pattern>",
		Short: "Run a single module across matched hosts",
		Example: `  # Ping-style check with the command module
  opsail adhoc all -m command -a "uptime"

  # Install a package on one group
  opsail adhoc webservers -m package -a "name=nginx state=present"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}

			inv, err := loadInventory(log)
			if err != nil {
				log.WithError(err).Error("inventory load failed")
				return err
			}

			opts := playbook.Options{Limit: limit, Forks: forks}
			summary, err := newRunner(log).RunAdhoc(cmd.Context(), inv, cmdArgs[0], module, args, opts)
			if err != nil {
				return err
			}
			if summary.HasFailures() {
				return fmt.Errorf("ad-hoc run finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&module, "module", "m", "command", "module to execute")
	cmd.Flags().StringVarP(&args, "args", "a", "", "module arguments as key=value pairs")
	cmd.Flags().StringVarP(&limit, "limit", "l", "", "restrict matched hosts to this pattern")
	cmd.Flags().IntVar(&forks, "forks", 1, "hosts to run on concurrently")

	return cmd
}
