package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nicholasyager/dbt-loom/internal/export"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save the federated nodes to a database",
		Long: `Load every configured manifest and write the federated nodes to SQLite or
PostgreSQL as a new export. Migrations run before the export is written.

With --list, print the saved exports, newest first, instead of writing one.`,
		Example: `  # Export to the default SQLite file
  loom export

  # Export to PostgreSQL
  loom export --driver postgres --dsn postgres://loom@localhost/loom

  # List saved exports
  loom export --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if list {
				return listExports(ctx, cmdCtx)
			}

			fed, err := cmdCtx.Federate(ctx)
			if err != nil {
				return err
			}

			store, err := cmdCtx.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			exp, err := store.Save(ctx, fed.Nodes(), fed.Projects())
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if ok, err := r.Structured(exp); ok {
				return err
			}
			r.Println(fmt.Sprintf("Export %s: %d nodes from %d projects", exp.ID, exp.NodeCount, len(exp.Projects)))
			r.Muted(fmt.Sprintf("%s at %s", cmdCtx.Cfg.Export.Driver, exp.CreatedAt.Format(time.RFC3339)))
			return nil
		},
	}

	cmd.Flags().String("driver", "", "Export database driver: sqlite or postgres")
	cmd.Flags().String("dsn", "", "Export database DSN (file path for sqlite)")
	cmd.Flags().BoolVar(&list, "list", false, "List saved exports instead of writing one")

	return cmd
}

func listExports(ctx context.Context, cmdCtx *CommandContext) error {
	store, err := cmdCtx.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	exports, err := store.Exports(ctx)
	if err != nil {
		return err
	}
	if exports == nil {
		exports = []export.Export{}
	}

	r := cmdCtx.Renderer
	if ok, err := r.Structured(exports); ok {
		return err
	}

	r.Header(fmt.Sprintf("Exports (%d)", len(exports)))
	rows := make([]table.Row, 0, len(exports))
	for _, e := range exports {
		rows = append(rows, table.Row{e.ID, e.CreatedAt.Format(time.RFC3339), strings.Join(e.Projects, ", "), e.NodeCount})
	}
	r.Table(table.Row{"ID", "Created", "Projects", "Nodes"}, rows)
	return nil
}
