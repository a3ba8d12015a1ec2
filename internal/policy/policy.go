// Package policy decides whether a reference from one node to a federated
// node violates the target's access level.
//
// The predicates are pure. A host owns its dependency context and passes it
// in; Guard augments that context with a restricted entry for every
// federated project the host does not know about.
package policy

import (
	"fmt"
	"maps"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// DependencyEntry is the host's view of one project it depends on.
type DependencyEntry struct {
	RestrictAccess bool              `json:"restrict_access" yaml:"restrict_access"`
	Vars           map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// Dependencies maps project names to their entries.
type Dependencies map[string]DependencyEntry

// restricted reports whether references into pkg are restricted. Unknown
// projects are not.
func (d Dependencies) restricted(pkg string) bool {
	return d[pkg].RestrictAccess
}

// Augment returns a copy of deps with a restricted entry added for every
// project in projects that deps does not already contain.
func Augment(deps Dependencies, projects []string) Dependencies {
	out := make(Dependencies, len(deps)+len(projects))
	maps.Copy(out, deps)
	for _, p := range projects {
		if _, ok := out[p]; !ok {
			out[p] = DependencyEntry{RestrictAccess: true, Vars: map[string]string{}}
		}
	}
	return out
}

// exempt reports whether access rules do not apply to the edge at all.
func exempt(referencer, target core.Node) bool {
	if !target.IsModel() {
		return true
	}
	switch referencer.ResourceType {
	case core.ResourceSQLOperation, core.ResourceRPC:
		return true
	}
	return false
}

// IsInvalidProtectedReference reports whether referencer may not use a
// protected target from another, restricted package.
func IsInvalidProtectedReference(referencer, target core.Node, deps Dependencies) bool {
	if exempt(referencer, target) {
		return false
	}
	return target.Access == core.AccessProtected &&
		referencer.PackageName != target.PackageName &&
		deps.restricted(target.PackageName)
}

// IsInvalidPrivateReference reports whether referencer may not use a
// private target, either because the groups differ or because the target
// lives in another, restricted package.
func IsInvalidPrivateReference(referencer, target core.Node, deps Dependencies) bool {
	if exempt(referencer, target) || target.Access != core.AccessPrivate {
		return false
	}
	if referencer.Group != "" && referencer.Group != target.Group {
		return true
	}
	return referencer.PackageName != target.PackageName && deps.restricted(target.PackageName)
}

// Decision explains the outcome of both predicates for one edge.
type Decision struct {
	Referencer       string `json:"referencer"`
	Target           string `json:"target"`
	Allowed          bool   `json:"allowed"`
	InvalidProtected bool   `json:"invalid_protected"`
	InvalidPrivate   bool   `json:"invalid_private"`
	Reason           string `json:"reason"`
}

// Check evaluates both predicates and explains the result.
func Check(referencer, target core.Node, deps Dependencies) Decision {
	d := Decision{
		Referencer:       referencer.UniqueID,
		Target:           target.UniqueID,
		InvalidProtected: IsInvalidProtectedReference(referencer, target, deps),
		InvalidPrivate:   IsInvalidPrivateReference(referencer, target, deps),
	}
	d.Allowed = !d.InvalidProtected && !d.InvalidPrivate

	switch {
	case !target.IsModel():
		d.Reason = fmt.Sprintf("target is a %s, access rules apply to models only", target.ResourceType)
	case exempt(referencer, target):
		d.Reason = fmt.Sprintf("%s references are exempt from access rules", referencer.ResourceType)
	case d.InvalidPrivate && referencer.Group != "" && referencer.Group != target.Group:
		d.Reason = fmt.Sprintf("private model belongs to group %q, referencer is in group %q", target.Group, referencer.Group)
	case d.InvalidPrivate:
		d.Reason = fmt.Sprintf("private model in restricted package %q", target.PackageName)
	case d.InvalidProtected:
		d.Reason = fmt.Sprintf("protected model in restricted package %q", target.PackageName)
	case referencer.PackageName == target.PackageName:
		d.Reason = "same package"
	case target.Access == core.AccessPublic:
		d.Reason = "target is public"
	default:
		d.Reason = fmt.Sprintf("package %q is not restricted", target.PackageName)
	}
	return d
}

// Validator is the strategy a host calls for every cross-project edge.
type Validator interface {
	IsInvalidProtectedReference(referencer, target core.Node, deps Dependencies) bool
	IsInvalidPrivateReference(referencer, target core.Node, deps Dependencies) bool
}

// ProjectSource lists federated project names.
type ProjectSource interface {
	Projects() []string
}

// Guard is a Validator that restricts every federated project unless the
// host supplies its own entry.
type Guard struct {
	source ProjectSource
}

var _ Validator = (*Guard)(nil)

// NewGuard creates a Guard over source, typically a *federation.Federation.
func NewGuard(source ProjectSource) *Guard {
	return &Guard{source: source}
}

// Dependencies returns deps augmented with the federated projects.
func (g *Guard) Dependencies(deps Dependencies) Dependencies {
	return Augment(deps, g.source.Projects())
}

func (g *Guard) IsInvalidProtectedReference(referencer, target core.Node, deps Dependencies) bool {
	return IsInvalidProtectedReference(referencer, target, g.Dependencies(deps))
}

func (g *Guard) IsInvalidPrivateReference(referencer, target core.Node, deps Dependencies) bool {
	return IsInvalidPrivateReference(referencer, target, g.Dependencies(deps))
}

// Check evaluates both predicates against the augmented context.
func (g *Guard) Check(referencer, target core.Node, deps Dependencies) Decision {
	return Check(referencer, target, g.Dependencies(deps))
}
