package commands

import (
	"fmt"
	"maps"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// NodesOptions holds options for the nodes command.
type NodesOptions struct {
	Package string
	Type    string
	Access  string
}

// NewNodesCommand creates the nodes command.
func NewNodesCommand() *cobra.Command {
	opts := &NodesOptions{}
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List federated nodes",
		Long: `Load every configured manifest and list the nodes they contribute.

Tests and macros are never listed. Use the filters to narrow the result.`,
		Example: `  # List all federated nodes
  loom nodes

  # Public models of one project as JSON
  loom nodes --package revenue --access public -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNodes(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Package, "package", "p", "", "Only nodes of this package")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "Only nodes of this resource type")
	cmd.Flags().StringVar(&opts.Access, "access", "", "Only nodes with this access level")

	return cmd
}

func runNodes(cmd *cobra.Command, opts *NodesOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	fed, err := cmdCtx.Federate(cmd.Context())
	if err != nil {
		return err
	}

	all := fed.Nodes()
	nodes := make([]core.Node, 0, len(all))
	for _, id := range slices.Sorted(maps.Keys(all)) {
		n := all[id]
		if opts.Package != "" && n.PackageName != opts.Package {
			continue
		}
		if opts.Type != "" && string(n.ResourceType) != opts.Type {
			continue
		}
		if opts.Access != "" && string(n.Access) != opts.Access {
			continue
		}
		nodes = append(nodes, n)
	}

	r := cmdCtx.Renderer
	if ok, err := r.Structured(nodes); ok {
		return err
	}

	r.Header(fmt.Sprintf("Nodes (%d)", len(nodes)))
	rows := make([]table.Row, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, table.Row{n.UniqueID, n.ResourceType, n.Access, n.Version, n.RelationName})
	}
	r.Table(table.Row{"Unique ID", "Type", "Access", "Version", "Relation"}, rows)
	return nil
}
