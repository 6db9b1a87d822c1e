// Package commands wires the opsail CLI together.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsailor/opsail/pkg/inventory"
	"github.com/opsailor/opsail/pkg/modules"
	"github.com/opsailor/opsail/pkg/playbook"
	"github.com/opsailor/opsail/pkg/telemetry"
	"github.com/opsailor/opsail/pkg/transports/ssh"
)

var (
	// Global flags
	inventoryPath string
	verbosity     int
	metricsListen string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opsail",
		Short: "opsail - agentless configuration management",
		Long: `opsail runs ansible-compatible playbooks and ad-hoc modules over SSH.

It reads INI inventories with group variable inheritance, renders Jinja2-style
templates and conditions, and executes tasks across hosts with handlers,
loops, privilege escalation, and a per-host recap.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "i", "inventory", "inventory file path")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "serve prometheus metrics on this address")

	rootCmd.AddCommand(newPlaybookCommand())
	rootCmd.AddCommand(newAdhocCommand())
	rootCmd.AddCommand(newInventoryCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// newLogger builds the CLI logger honoring counted -v flags.
func newLogger() (*telemetry.Logger, error) {
	cfg := telemetry.DefaultConfig().Logging
	cfg.Level = telemetry.LevelForVerbosity(verbosity)
	return telemetry.NewLogger(cfg)
}

// newMetrics starts the optional metrics endpoint.
func newMetrics(log *telemetry.Logger) *telemetry.Metrics {
	cfg := telemetry.DefaultConfig().Metrics
	if metricsListen != "" {
		cfg.Enabled = true
		cfg.ListenAddress = metricsListen
	}
	m, err := telemetry.NewMetrics(cfg)
	if err != nil {
		log.WithError(err).Warn("metrics disabled")
		return nil
	}
	if cfg.Enabled {
		go func() {
			if err := m.Serve(); err != nil {
				log.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}
	return m
}

// loadInventory parses and resolves the configured inventory file.
func loadInventory(log *telemetry.Logger) (*inventory.Inventory, error) {
	inv, err := inventory.NewLoader(log).ParseFile(inventoryPath)
	if err != nil {
		return nil, fmt.Errorf("could not load inventory %s: %w", inventoryPath, err)
	}
	return inv, nil
}

// sshConnect is the production ConnectFunc: an SSH client per host.
func sshConnect(log *telemetry.Logger) playbook.ConnectFunc {
	return func(ctx context.Context, host *inventory.Host) (modules.Conn, error) {
		client, err := ssh.NewClient(ssh.ConfigFromHost(host), log)
		if err != nil {
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}
}

// newRunner assembles the runner with the full module registry.
func newRunner(log *telemetry.Logger) *playbook.Runner {
	registry := modules.NewRegistry(log)
	return playbook.NewRunner(registry, log, newMetrics(log), sshConnect(log))
}
