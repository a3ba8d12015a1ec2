// Package federation holds the nodes imported from every configured manifest
// reference.
//
// A Federation is populated by Initialize. References are processed in
// order: load, normalize, select, merge. Later references win when two
// manifests define the same unique id. Nothing is committed unless every
// required reference succeeds.
package federation

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nicholasyager/dbt-loom/internal/normalize"
	"github.com/nicholasyager/dbt-loom/internal/selector"
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// Loader fetches the raw document for a reference.
type Loader interface {
	Load(ctx context.Context, ref core.ManifestReference) (core.Document, error)
}

// Federation is the registry of federated nodes and their source documents.
type Federation struct {
	loader        Loader
	logger        *slog.Logger
	now           func() time.Time
	excludedTypes []core.ResourceType

	mu        sync.RWMutex
	nodes     map[string]core.Node
	manifests map[string]core.Document
}

// Option configures a Federation.
type Option func(*Federation)

// WithLogger sets the logger. Nil uses a discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Federation) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock sets the clock used for nodes without a generated_at timestamp.
func WithClock(now func() time.Time) Option {
	return func(f *Federation) { f.now = now }
}

// WithExcludedTypes drops the given resource types from every reference in
// addition to tests and macros.
func WithExcludedTypes(types ...core.ResourceType) Option {
	return func(f *Federation) { f.excludedTypes = types }
}

// New creates an empty Federation backed by loader.
func New(loader Loader, opts ...Option) *Federation {
	f := &Federation{
		loader:    loader,
		logger:    slog.New(slog.DiscardHandler),
		nodes:     map[string]core.Node{},
		manifests: map[string]core.Document{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Initialize loads every reference. It is a no-op while the federation
// holds nodes, so callers may invoke it on every entry point. A load that
// produced no nodes is repeated on the next call.
func (f *Federation) Initialize(ctx context.Context, refs []core.ManifestReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.nodes) > 0 {
		return nil
	}

	nodes := make(map[string]core.Node)
	manifests := make(map[string]core.Document, len(refs))

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}

		f.logger.Info("loading manifest", "name", ref.Name, "type", ref.Kind)

		doc, selected, err := f.load(ctx, ref)
		if err != nil {
			if ref.Optional {
				f.logger.Warn("skipping optional manifest", "name", ref.Name, "error", err)
				continue
			}
			return fmt.Errorf("loading manifest %q: %w", ref.Name, err)
		}

		maps.Copy(nodes, selected)

		project := doc.ProjectName()
		if project == "" {
			project = ref.Name
		}
		manifests[project] = doc

		f.logger.Debug("manifest loaded", "name", ref.Name, "project", project, "nodes", len(selected))
	}

	f.nodes = nodes
	f.manifests = manifests

	f.logger.Info("federation initialized", "projects", len(manifests), "nodes", len(nodes))
	return nil
}

func (f *Federation) load(ctx context.Context, ref core.ManifestReference) (core.Document, map[string]core.Node, error) {
	doc, err := f.loader.Load(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	nodes, err := normalize.Normalize(doc, normalize.Options{Now: f.now, Logger: f.logger})
	if err != nil {
		return nil, nil, err
	}

	return doc, selector.Select(nodes, selector.Options{
		ExcludedPackages: ref.ExcludedPackages,
		ExcludedTypes:    f.excludedTypes,
	}), nil
}

// Nodes returns a copy of all federated nodes keyed by unique id.
func (f *Federation) Nodes() map[string]core.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.nodes)
}

// Node returns the node with the given unique id.
func (f *Federation) Node(id string) (core.Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[id]
	return n, ok
}

// Manifests returns the raw documents keyed by project name. The map is a
// copy; the documents are shared and must not be modified.
func (f *Federation) Manifests() map[string]core.Document {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.manifests)
}

// Projects returns the federated project names, sorted.
func (f *Federation) Projects() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.manifests))
}

// Len returns the number of federated nodes.
func (f *Federation) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.nodes)
}

// Reset drops all state so the next Initialize loads again.
func (f *Federation) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = map[string]core.Node{}
	f.manifests = map[string]core.Document{}
}
