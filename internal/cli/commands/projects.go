package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// ProjectSummary is one row of the projects command.
type ProjectSummary struct {
	Name  string `json:"name" yaml:"name"`
	Nodes int    `json:"nodes" yaml:"nodes"`
}

// NewProjectsCommand creates the projects command.
func NewProjectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List federated projects",
		Long:  `Load every configured manifest and list the projects they were generated from.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			fed, err := cmdCtx.Federate(cmd.Context())
			if err != nil {
				return err
			}

			counts := make(map[string]int)
			for _, n := range fed.Nodes() {
				counts[n.PackageName]++
			}

			projects := fed.Projects()
			summary := make([]ProjectSummary, 0, len(projects))
			for _, p := range projects {
				summary = append(summary, ProjectSummary{Name: p, Nodes: counts[p]})
			}

			r := cmdCtx.Renderer
			if ok, err := r.Structured(summary); ok {
				return err
			}

			rows := make([]table.Row, 0, len(summary))
			for _, s := range summary {
				rows = append(rows, table.Row{s.Name, s.Nodes})
			}
			r.Table(table.Row{"Project", "Nodes"}, rows)
			return nil
		},
	}
}
