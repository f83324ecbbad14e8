package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/provenance-updater/internal/data/graph"
	"github.com/yungbote/provenance-updater/internal/platform/neo4jdb"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the graph uniqueness constraints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			client, err := neo4jdb.New(ctx, cfg.Neo4j, log)
			if err != nil {
				return err
			}
			defer client.Close(context.Background())

			if err := graph.NewNeo4jStore(client, log).EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "graph constraints are in place")
			return nil
		},
	}
}
