package commands

import (
	"github.com/spf13/cobra"

	"github.com/nicholasyager/dbt-loom/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var fromExport string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the federated nodes over HTTP",
		Long: `Load every configured manifest once and serve the result as a read-only
JSON API until interrupted. With --from-export, serve a saved export from the
export store instead of loading the manifests.

Routes:
  GET  /nodes        all nodes (filters: package, resource_type)
  GET  /nodes/{id}   one node
  GET  /nodes/{id}/lineage  direct and transitive neighbours
  GET  /graph        node and edge counts, roots, leaves, cycle
  GET  /projects     federated project names
  POST /check        evaluate access rules for a reference`,
		Example: `  loom serve --addr 127.0.0.1:9000
  loom serve --from-export latest --dsn loom.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var source server.Source
			if fromExport != "" {
				store, err := cmdCtx.OpenStore(ctx)
				if err != nil {
					return err
				}
				snap, err := store.Snapshot(ctx, fromExport)
				_ = store.Close()
				if err != nil {
					return err
				}
				cmdCtx.Logger.Info("serving saved export", "id", snap.Export.ID, "nodes", snap.Export.NodeCount)
				source = snap
			} else {
				fed, err := cmdCtx.Federate(ctx)
				if err != nil {
					return err
				}
				source = fed
			}

			srv := server.NewServer(server.Config{
				Addr:   cmdCtx.Cfg.Server.Addr,
				Source: source,
				Logger: cmdCtx.Logger,
			})
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:8765)")
	cmd.Flags().StringVar(&fromExport, "from-export", "", `Serve a saved export by id, or "latest"`)
	cmd.Flags().String("driver", "", "Export database driver used with --from-export")
	cmd.Flags().String("dsn", "", "Export database DSN used with --from-export")

	return cmd
}
