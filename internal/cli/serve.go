package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yungbote/provenance-updater/internal/app"
	"github.com/yungbote/provenance-updater/internal/platform/shutdown"
)

type ServeOptions struct {
	*RootOptions
	PrintConfig  bool
	EnsureSchema bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume the message bus and serve the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.PrintConfig, "print-config", false, "print the effective configuration and exit")
	cmd.Flags().BoolVar(&opts.EnsureSchema, "ensure-schema", true, "create graph constraints before consuming; when false the constraints must already exist")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	if opts.PrintConfig {
		out, err := cfg.Render()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}

	ctx, stop := shutdown.NotifyContext(cmd.Context())
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{WithLedger: true})
	if err != nil {
		log.Error("startup failed", "error", err)
		log.Sync()
		return err
	}
	defer a.Close(context.Background())

	if err := prepareSchema(ctx, a, opts.EnsureSchema); err != nil {
		log.Error("graph schema not ready", "error", err)
		return err
	}

	log.Info("provenance-updater started", "env", cfg.Env, "stream", cfg.NATS.Stream, "http", cfg.HTTP.Addr)
	if err := a.Serve(ctx); err != nil {
		log.Error("serve stopped", "error", err)
		return err
	}
	log.Info("provenance-updater stopped")
	return nil
}

type schemaPreparer interface {
	EnsureSchema(ctx context.Context) error
	CheckSchema(ctx context.Context) error
}

// prepareSchema creates the graph constraints, or with ensure off verifies
// they exist, before any message is consumed.
func prepareSchema(ctx context.Context, a schemaPreparer, ensure bool) error {
	if ensure {
		return a.EnsureSchema(ctx)
	}
	return a.CheckSchema(ctx)
}
