package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newInventoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Show the resolved inventory",
		Long: `Show every group and host with its explicit and inherited variables
after group inheritance has been applied. Useful for debugging variable
precedence.`,
		Args: cobra.NoArgs,
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

			out := cmd.OutOrStdout()
			for _, groupName := range inv.GroupNames() {
				group, _ := inv.Group(groupName)
				fmt.Fprintf(out, "[%s]\n", groupName)
				if len(group.Variables) > 0 {
					for _, k := range sortedKeys(group.Variables) {
						fmt.Fprintf(out, "  var %s=%s\n", k, group.Variables[k])
					}
				}
				members := make([]string, 0, len(group.Hosts))
				for name := range group.Hosts {
					members = append(members, name)
				}
				sort.Strings(members)
				for _, name := range members {
					fmt.Fprintf(out, "  %s\n", name)
				}
				fmt.Fprintln(out)
			}

			for _, name := range inv.HostNames() {
				host, _ := inv.Host(name)
				fmt.Fprintf(out, "%s (address=%s port=%d)\n", host.Name, host.Hostname, host.Port)
				for _, k := range sortedKeys(host.Variables) {
					fmt.Fprintf(out, "  %s=%s\n", k, host.Variables[k])
				}
				for _, k := range sortedKeys(host.Inherited) {
					fmt.Fprintf(out, "  %s=%s (inherited)\n", k, host.Inherited[k])
				}
			}
			return nil
		},
	}
	return cmd
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
