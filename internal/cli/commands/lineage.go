package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicholasyager/dbt-loom/internal/cli/output"
	"github.com/nicholasyager/dbt-loom/internal/dag"
)

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage [node]",
		Short: "Show the dependency graph of the federated nodes",
		Long: `Build the dependency graph of the federated nodes.

With a node, print its direct and transitive dependencies and dependents.
Dependencies on nodes that were not federated (sources, excluded packages)
are listed as external. Without a node, print a summary of the whole graph:
node and edge counts, roots, leaves and any dependency cycle.`,
		Example: `  loom lineage
  loom lineage model.revenue.orders
  loom lineage model.revenue.orders -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			fed, err := cmdCtx.Federate(cmd.Context())
			if err != nil {
				return err
			}

			g := dag.Build(fed.Nodes())
			if len(args) == 0 {
				return renderSummary(cmdCtx.Renderer, g.Summary())
			}

			l, ok := g.Lineage(args[0])
			if !ok {
				return fmt.Errorf("node %q is not a federated node", args[0])
			}

			r := cmdCtx.Renderer
			if ok, err := r.Structured(l); ok {
				return err
			}

			r.Header(l.ID)
			renderSections(r, []section{
				{"Parents", l.Parents},
				{"Children", l.Children},
				{"Upstream", l.Upstream},
				{"Downstream", l.Downstream},
				{"External", l.External},
			})
			return nil
		},
	}
}

type section struct {
	title string
	ids   []string
}

func renderSections(r *output.Renderer, sections []section) {
	for _, s := range sections {
		r.Println(fmt.Sprintf("%s (%d)", s.title, len(s.ids)))
		for _, id := range s.ids {
			r.Println("  " + id)
		}
	}
}

func renderSummary(r *output.Renderer, s dag.Summary) error {
	if ok, err := r.Structured(s); ok {
		return err
	}

	r.Header(fmt.Sprintf("Graph: %d nodes, %d edges", s.Nodes, s.Edges))
	renderSections(r, []section{
		{"Roots", s.Roots},
		{"Leaves", s.Leaves},
	})
	if len(s.Cycle) > 0 {
		r.Warn("cycle: " + strings.Join(s.Cycle, " -> "))
	}
	return nil
}
