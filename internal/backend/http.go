package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// HTTPBackend streams manifests from http and https URLs.
type HTTPBackend struct {
	getter *httpGetter
	logger *slog.Logger
}

// NewHTTPBackend creates an HTTPBackend. A nil client uses a default client.
func NewHTTPBackend(client *http.Client, logger *slog.Logger) *HTTPBackend {
	return &HTTPBackend{
		getter: newHTTPGetter(client),
		logger: loggerOrDiscard(logger),
	}
}

// Fetch performs a streaming GET and decodes the body, decompressing it when
// the URL path carries a compression suffix or the response is still
// transport-compressed.
func (b *HTTPBackend) Fetch(ctx context.Context, src core.SourceConfig) (core.Document, error) {
	cfg, err := sourceAs[core.FileConfig](src)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(cfg.Path)
	if err != nil || u.Path == "" {
		return nil, &core.ConfigurationError{Message: fmt.Sprintf("invalid manifest URL %q", cfg.Path), Err: err}
	}

	b.logger.Debug("fetching manifest over HTTP", "url", u.Redacted())

	resp, err := b.getter.get(ctx, cfg.Path, nil)
	if err != nil {
		return nil, core.NewLoadError("http", u.Redacted(), statusReason(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	compression := CompressionFor(u.Path)
	if compression == "" && !resp.Uncompressed && strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		compression = SuffixGzip
	}

	return decodeDocument("http", u.Redacted(), b.getter.body(resp), compression)
}
