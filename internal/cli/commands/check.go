package commands

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicholasyager/dbt-loom/internal/policy"
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// ErrReferenceDenied is returned by the check command when the reference
// violates the target's access level.
var ErrReferenceDenied = errors.New("reference not allowed")

// CheckOptions holds options for the check command.
type CheckOptions struct {
	From         string
	Group        string
	Unrestricted []string
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}
	cmd := &cobra.Command{
		Use:   "check <target>",
		Short: "Check whether a node may reference a federated node",
		Long: `Evaluate the access rules for a reference from --from to a federated target.

The referencer is looked up among the federated nodes first. Otherwise it is
treated as a node of the local project, built from its unique id
("{type}.{package}.{name}"). Every federated project is restricted unless
listed with --unrestricted.

The command exits with an error when the reference is not allowed.`,
		Example: `  # May the local kpis model reference a federated model?
  loom check model.revenue.orders --from model.reporting.kpis

  # Private model owned by a group
  loom check model.revenue.ledger --from model.revenue.kpis --group finance`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "Unique id of the referencing node (required)")
	cmd.Flags().StringVar(&opts.Group, "group", "", "Group of the referencing node when it is local")
	cmd.Flags().StringSliceVar(&opts.Unrestricted, "unrestricted", nil, "Projects whose access is not restricted")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func runCheck(cmd *cobra.Command, targetID string, opts *CheckOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	fed, err := cmdCtx.Federate(cmd.Context())
	if err != nil {
		return err
	}

	target, ok := fed.Node(targetID)
	if !ok {
		return fmt.Errorf("target %q is not a federated node", targetID)
	}

	referencer, ok := fed.Node(opts.From)
	if !ok {
		referencer, err = localNode(opts.From, opts.Group)
		if err != nil {
			return err
		}
	}

	deps := policy.Dependencies{}
	for _, p := range opts.Unrestricted {
		deps[p] = policy.DependencyEntry{RestrictAccess: false}
	}

	decision := policy.NewGuard(fed).Check(referencer, target, deps)

	r := cmdCtx.Renderer
	if ok, err := r.Structured(decision); ok {
		if err != nil {
			return err
		}
	} else {
		verdict := r.Styles().Success.Render("allowed")
		if !decision.Allowed {
			verdict = r.Styles().Error.Render("denied")
		}
		r.Println(fmt.Sprintf("%s -> %s: %s", decision.Referencer, decision.Target, verdict))
		r.Muted(decision.Reason)
	}

	if !decision.Allowed {
		return ErrReferenceDenied
	}
	return nil
}

// localNode builds a referencing node from its unique id,
// "{type}.{package}.{name}" with an optional ".v{version}" suffix.
func localNode(id, group string) (core.Node, error) {
	parts := strings.Split(id, ".")
	var version string
	if len(parts) == 4 && strings.HasPrefix(parts[3], "v") && len(parts[3]) > 1 {
		version = parts[3][1:]
		parts = parts[:3]
	}
	if len(parts) != 3 || slices.Contains(parts, "") {
		return core.Node{}, fmt.Errorf("invalid unique id %q, want {type}.{package}.{name}[.v{version}]", id)
	}

	rt := core.ResourceType(parts[0])
	return core.Node{
		UniqueID:     core.UniqueID(rt, parts[1], parts[2], version),
		ResourceType: rt,
		PackageName:  parts[1],
		Name:         parts[2],
		Version:      version,
		Group:        group,
		Access:       core.DefaultAccess,
	}, nil
}
