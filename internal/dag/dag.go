// Package dag builds the dependency graph of federated nodes from their
// depends_on lists. Dependencies on nodes outside the federation are kept
// as external references rather than edges.
package dag

import (
	"fmt"
	"maps"
	"slices"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// Graph is a directed graph of federated nodes. An edge runs from a
// dependency (parent) to its dependent (child).
type Graph struct {
	nodes    map[string]core.Node
	children map[string][]string
	parents  map[string][]string
	external map[string][]string
}

// Build creates the graph for nodes.
func Build(nodes map[string]core.Node) *Graph {
	g := &Graph{
		nodes:    maps.Clone(nodes),
		children: make(map[string][]string, len(nodes)),
		parents:  make(map[string][]string, len(nodes)),
		external: make(map[string][]string),
	}
	if g.nodes == nil {
		g.nodes = map[string]core.Node{}
	}

	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		for _, dep := range g.nodes[id].DependsOn {
			if dep == id {
				continue
			}
			if _, ok := g.nodes[dep]; !ok {
				g.external[id] = appendUnique(g.external[id], dep)
				continue
			}
			g.children[dep] = appendUnique(g.children[dep], id)
			g.parents[id] = appendUnique(g.parents[id], dep)
		}
	}
	return g
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.children {
		count += len(children)
	}
	return count
}

// Parents returns the direct dependencies of id.
func (g *Graph) Parents(id string) []string {
	return slices.Clone(g.parents[id])
}

// Children returns the direct dependents of id.
func (g *Graph) Children(id string) []string {
	return slices.Clone(g.children[id])
}

// External returns the dependencies of id that are not federated nodes.
func (g *Graph) External(id string) []string {
	return slices.Clone(g.external[id])
}

// Upstream returns every transitive dependency of id, sorted.
func (g *Graph) Upstream(id string) []string {
	return g.walk(id, g.parents)
}

// Downstream returns every transitive dependent of id, sorted.
func (g *Graph) Downstream(id string) []string {
	return g.walk(id, g.children)
}

func (g *Graph) walk(id string, next map[string][]string) []string {
	seen := make(map[string]bool)
	stack := slices.Clone(next[id])
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] || cur == id {
			continue
		}
		seen[cur] = true
		stack = append(stack, next[cur]...)
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Roots returns nodes without federated dependencies.
func (g *Graph) Roots() []string {
	roots := []string{}
	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Leaves returns nodes without federated dependents.
func (g *Graph) Leaves() []string {
	leaves := []string{}
	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		if len(g.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// HasCycle reports whether the graph contains a cycle, along with one
// cycle path that starts and ends on the same node.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	from := make(map[string]string)

	var cycle []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		for _, child := range g.children[id] {
			if !visited[child] {
				from[child] = id
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				cycle = []string{child}
				for cur := id; cur != child; cur = from[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}

		onStack[id] = false
		return false
	}

	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		if !visited[id] && dfs(id) {
			return true, cycle
		}
	}
	return false, nil
}

// TopologicalSort returns node ids with dependencies before dependents.
// Ties are broken by id.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", path)
	}

	visited := make(map[string]bool, len(g.nodes))
	out := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, p := range slices.Sorted(slices.Values(g.parents[id])) {
			visit(p)
		}
		out = append(out, id)
	}

	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		visit(id)
	}
	return out, nil
}

// Lineage is the neighbourhood of one node.
type Lineage struct {
	ID         string   `json:"id" yaml:"id"`
	Parents    []string `json:"parents" yaml:"parents"`
	Children   []string `json:"children" yaml:"children"`
	Upstream   []string `json:"upstream" yaml:"upstream"`
	Downstream []string `json:"downstream" yaml:"downstream"`
	External   []string `json:"external" yaml:"external"`
}

// Lineage returns the direct and transitive neighbourhood of id.
func (g *Graph) Lineage(id string) (Lineage, bool) {
	if !g.Has(id) {
		return Lineage{}, false
	}
	return Lineage{
		ID:         id,
		Parents:    nonNil(g.Parents(id)),
		Children:   nonNil(g.Children(id)),
		Upstream:   g.Upstream(id),
		Downstream: g.Downstream(id),
		External:   nonNil(g.External(id)),
	}, true
}

// Summary describes the shape of the whole graph.
type Summary struct {
	Nodes  int      `json:"nodes" yaml:"nodes"`
	Edges  int      `json:"edges" yaml:"edges"`
	Roots  []string `json:"roots" yaml:"roots"`
	Leaves []string `json:"leaves" yaml:"leaves"`
	// Cycle is one dependency cycle, empty when the graph is acyclic.
	Cycle []string `json:"cycle" yaml:"cycle"`
}

// Summary returns counts, roots, leaves and any cycle of the graph.
func (g *Graph) Summary() Summary {
	_, cycle := g.HasCycle()
	return Summary{
		Nodes:  g.NodeCount(),
		Edges:  g.EdgeCount(),
		Roots:  g.Roots(),
		Leaves: g.Leaves(),
		Cycle:  nonNil(cycle),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func appendUnique(s []string, v string) []string {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
