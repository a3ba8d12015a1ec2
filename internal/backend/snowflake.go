package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// WarehouseProfile holds the Snowflake connection settings used to read
// stages. It is the `warehouse:` block of the loom configuration.
type WarehouseProfile struct {
	Account   string `koanf:"account" json:"account" yaml:"account"`
	User      string `koanf:"user" json:"user" yaml:"user"`
	Password  string `koanf:"password" json:"-" yaml:"-"`
	Database  string `koanf:"database" json:"database" yaml:"database"`
	Schema    string `koanf:"schema" json:"schema" yaml:"schema"`
	Warehouse string `koanf:"warehouse" json:"warehouse" yaml:"warehouse"`
	Role      string `koanf:"role" json:"role" yaml:"role"`
}

// DSN renders the profile as a gosnowflake data source name.
func (p WarehouseProfile) DSN() (string, error) {
	if p.Account == "" {
		return "", &core.ConfigurationError{Message: "warehouse account is required for snowflake references"}
	}
	return gosnowflake.DSN(&gosnowflake.Config{
		Account:   p.Account,
		User:      p.User,
		Password:  p.Password,
		Database:  p.Database,
		Schema:    p.Schema,
		Warehouse: p.Warehouse,
		Role:      p.Role,
	})
}

// OpenWarehouse opens a database handle for the profile.
func OpenWarehouse(p WarehouseProfile) (*sql.DB, error) {
	dsn, err := p.DSN()
	if err != nil {
		return nil, err
	}
	return sql.Open("snowflake", dsn)
}

// SnowflakeBackend downloads manifests from Snowflake stages into a scoped
// temporary directory and decodes them.
type SnowflakeBackend struct {
	profile   WarehouseProfile
	open      func(WarehouseProfile) (*sql.DB, error)
	mkdirTemp func(dir, pattern string) (string, error)
	logger    *slog.Logger
}

// NewSnowflakeBackend creates a SnowflakeBackend for the given warehouse profile.
func NewSnowflakeBackend(profile WarehouseProfile, logger *slog.Logger) *SnowflakeBackend {
	return &SnowflakeBackend{
		profile:   profile,
		open:      OpenWarehouse,
		mkdirTemp: os.MkdirTemp,
		logger:    loggerOrDiscard(logger),
	}
}

// Fetch runs a stage GET into a temporary directory and decodes the file.
// The directory is removed before Fetch returns.
func (b *SnowflakeBackend) Fetch(ctx context.Context, src core.SourceConfig) (core.Document, error) {
	cfg, err := sourceAs[core.StageConfig](src)
	if err != nil {
		return nil, err
	}
	stagePath := strings.TrimLeft(cfg.StagePath, "/")
	if cfg.Stage == "" || stagePath == "" {
		return nil, &core.ConfigurationError{Message: "snowflake references require stage and stage_path"}
	}

	db, err := b.open(b.profile)
	if err != nil {
		var cfgErr *core.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, core.NewLoadError("snowflake", cfg.Object(), core.ErrTransport, err)
	}
	defer func() { _ = db.Close() }()

	tmp, err := b.mkdirTemp("", "dbt_loom_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			b.logger.Warn("failed to remove temp directory", "path", tmp, "error", err)
		}
	}()

	// Snowflake requires forward slashes in file URIs.
	query := fmt.Sprintf("GET @%s/%s 'file://%s/'", cfg.Stage, stagePath, filepath.ToSlash(tmp))
	b.logger.Debug("downloading manifest from stage", "query", query)

	n, err := countRows(ctx, db, query)
	if err != nil {
		return nil, core.NewLoadError("snowflake", cfg.Object(), core.ErrTransport, err)
	}
	if n == 0 {
		return nil, core.NewLoadError("snowflake", cfg.Object(), core.ErrEmptyResult,
			fmt.Errorf("stage GET returned no files"))
	}

	name := filepath.Join(tmp, path.Base(stagePath))
	//nolint:gosec // Path is inside the directory created above
	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.NewLoadError("snowflake", cfg.Object(), core.ErrPathNotFound, err)
		}
		return nil, core.NewLoadError("snowflake", cfg.Object(), core.ErrTransport, err)
	}
	defer func() { _ = f.Close() }()

	return decodeDocument("snowflake", cfg.Object(), f, CompressionFor(name))
}

func countRows(ctx context.Context, db *sql.DB, query string) (int, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}
