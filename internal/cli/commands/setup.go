// Package commands implements the loom subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nicholasyager/dbt-loom/internal/backend"
	"github.com/nicholasyager/dbt-loom/internal/cli/output"
	"github.com/nicholasyager/dbt-loom/internal/config"
	"github.com/nicholasyager/dbt-loom/internal/export"
	"github.com/nicholasyager/dbt-loom/internal/federation"
	"github.com/nicholasyager/dbt-loom/internal/manifest"
)

type (
	configKey   struct{}
	loggerKey   struct{}
	rendererKey struct{}
)

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithRenderer stores r in ctx.
func WithRenderer(ctx context.Context, r *output.Renderer) context.Context {
	return context.WithValue(ctx, rendererKey{}, r)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext collects the dependencies stored by the root command.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	ctx := cmd.Context()
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok {
		return nil, fmt.Errorf("configuration not loaded")
	}
	r, ok := ctx.Value(rendererKey{}).(*output.Renderer)
	if !ok {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeAuto)
	}
	return &CommandContext{Cfg: cfg, Logger: GetLogger(ctx), Renderer: r}, nil
}

// Federate builds the manifest loader from the configuration and
// initializes a federation over every configured reference.
func (c *CommandContext) Federate(ctx context.Context) (*federation.Federation, error) {
	refs, err := c.Cfg.References()
	if err != nil {
		return nil, err
	}

	loader := manifest.NewLoader(
		manifest.WithLogger(c.Logger),
		manifest.WithHTTPClient(backend.NewHTTPClient(c.Cfg.HTTP.Timeout)),
		manifest.WithWarehouse(c.Cfg.Warehouse),
	)

	fed := federation.New(loader,
		federation.WithLogger(c.Logger),
		federation.WithExcludedTypes(c.Cfg.ResourceTypes()...),
	)
	if err := fed.Initialize(ctx, refs); err != nil {
		return nil, err
	}
	return fed, nil
}

// OpenStore opens the configured export store and applies migrations.
func (c *CommandContext) OpenStore(ctx context.Context) (*export.Store, error) {
	store, err := export.Open(ctx, c.Cfg.Export.Driver, c.Cfg.Export.DSN, c.Logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
