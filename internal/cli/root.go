// Package cli holds the provenance-updater command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/provenance-updater/internal/config"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "provenance-updater",
		Short: "Keep the build provenance graph in sync with upstream events",
		Long: `provenance-updater consumes notifications from the source repository,
build system, release tool, rebuild service and bug tracker, and reconciles
them into a property graph of commits, builds, advisories, bugs and people.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}

// load reads the configuration and builds a logger for its environment.
func (o *RootOptions) load() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
