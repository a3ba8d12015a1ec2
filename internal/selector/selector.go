// Package selector filters normalized nodes down to the subset injected for
// one manifest reference.
package selector

import (
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// Options controls which nodes are removed.
type Options struct {
	// ExcludedPackages lists package names whose nodes are dropped.
	ExcludedPackages []string
	// ExcludedTypes lists additional resource types to drop. Tests and
	// macros are always dropped.
	ExcludedTypes []core.ResourceType
}

// Select returns the nodes that survive opts. The input map is not modified.
func Select(nodes map[string]core.Node, opts Options) map[string]core.Node {
	packages := make(map[string]struct{}, len(opts.ExcludedPackages))
	for _, p := range opts.ExcludedPackages {
		packages[p] = struct{}{}
	}
	types := make(map[core.ResourceType]struct{}, len(opts.ExcludedTypes))
	for _, rt := range opts.ExcludedTypes {
		types[rt] = struct{}{}
	}

	out := make(map[string]core.Node, len(nodes))
	for id, n := range nodes {
		if !n.ResourceType.Federatable() {
			continue
		}
		if _, ok := types[n.ResourceType]; ok {
			continue
		}
		if _, ok := packages[n.PackageName]; ok {
			continue
		}
		out[id] = n
	}
	return out
}
