// Package backend provides the storage backends that retrieve manifest
// documents: local files, HTTP(S), S3-compatible stores, GCS, Azure Blob,
// dbt Cloud and Snowflake stages.
//
// Every backend converts a core.SourceConfig into a decoded core.Document and
// reports failures as *core.LoadError or *core.ConfigurationError.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// Backend fetches and decodes one manifest document.
type Backend interface {
	Fetch(ctx context.Context, src core.SourceConfig) (core.Document, error)
}

// Func adapts a function to the Backend interface.
type Func func(ctx context.Context, src core.SourceConfig) (core.Document, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, src core.SourceConfig) (core.Document, error) {
	return f(ctx, src)
}

// sourceAs asserts the concrete SourceConfig variant a backend expects.
func sourceAs[T core.SourceConfig](src core.SourceConfig) (T, error) {
	cfg, ok := src.(T)
	if !ok {
		var want T
		return want, &core.ConfigurationError{
			Message: fmt.Sprintf("expected %s config, got %T", want.Kind(), src),
		}
	}
	return cfg, nil
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
