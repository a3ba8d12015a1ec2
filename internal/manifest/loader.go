// Package manifest retrieves manifest documents for references by
// dispatching on the reference kind to a storage backend.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/nicholasyager/dbt-loom/internal/backend"
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// Loader maps reference kinds to backends. The table is fixed at
// construction.
type Loader struct {
	backends map[core.Kind]backend.Backend
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*loaderOptions)

type loaderOptions struct {
	logger    *slog.Logger
	client    *http.Client
	warehouse backend.WarehouseProfile
	overrides map[core.Kind]backend.Backend
}

// WithLogger sets the logger passed to every backend.
func WithLogger(logger *slog.Logger) Option {
	return func(o *loaderOptions) { o.logger = logger }
}

// WithHTTPClient sets the client used by the http and dbt_cloud backends.
func WithHTTPClient(client *http.Client) Option {
	return func(o *loaderOptions) { o.client = client }
}

// WithWarehouse sets the connection profile used by the snowflake backend.
func WithWarehouse(p backend.WarehouseProfile) Option {
	return func(o *loaderOptions) { o.warehouse = p }
}

// WithBackend replaces the backend registered for kind.
func WithBackend(kind core.Kind, b backend.Backend) Option {
	return func(o *loaderOptions) {
		if o.overrides == nil {
			o.overrides = make(map[core.Kind]backend.Backend)
		}
		o.overrides[kind] = b
	}
}

// NewLoader creates a Loader with the default backend table.
func NewLoader(opts ...Option) *Loader {
	var o loaderOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	l := &Loader{
		backends: map[core.Kind]backend.Backend{
			core.KindFile:      backend.NewFileBackend(o.client, o.logger),
			core.KindS3:        backend.NewS3Backend(nil, o.logger),
			core.KindGCS:       backend.NewGCSBackend(nil, o.logger),
			core.KindAzure:     backend.NewAzureBackend(nil, o.logger),
			core.KindDbtCloud:  backend.NewDbtCloudBackend(o.client, o.logger),
			core.KindSnowflake: backend.NewSnowflakeBackend(o.warehouse, o.logger),
		},
		logger: o.logger,
	}
	for kind, b := range o.overrides {
		if b == nil {
			delete(l.backends, kind)
			continue
		}
		l.backends[kind] = b
	}
	return l
}

// Kinds returns the registered kinds, sorted.
func (l *Loader) Kinds() []core.Kind {
	kinds := make([]core.Kind, 0, len(l.backends))
	for k := range l.backends {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Load fetches the document for ref.
func (l *Loader) Load(ctx context.Context, ref core.ManifestReference) (core.Document, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	b, ok := l.backends[ref.Kind]
	if !ok {
		kinds := make([]string, 0, len(l.backends))
		for _, k := range l.Kinds() {
			kinds = append(kinds, string(k))
		}
		return nil, &core.ConfigurationError{
			Reference: ref.Name,
			Err:       fmt.Errorf("%w: %q (registered: %s)", core.ErrUnknownKind, ref.Kind, strings.Join(kinds, ", ")),
		}
	}

	l.logger.Debug("loading manifest", "name", ref.Name, "type", ref.Kind, "object", ref.Source.Object())

	doc, err := b.Fetch(ctx, ref.Source)
	if err != nil {
		var cfgErr *core.ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Reference == "" {
			cfgErr.Reference = ref.Name
		}
		return nil, err
	}
	return doc, nil
}
