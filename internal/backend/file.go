package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// windowsDrive matches paths that start with a drive letter, e.g. C:\ or c:/.
var windowsDrive = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// FileBackend serves "file" references. Both local paths and HTTP(S) URLs are
// file references; the URI scheme decides which transport is used.
type FileBackend struct {
	local *LocalBackend
	http  *HTTPBackend
}

// NewFileBackend creates a FileBackend using client for http and https URLs.
func NewFileBackend(client *http.Client, logger *slog.Logger) *FileBackend {
	return &FileBackend{
		local: NewLocalBackend(logger),
		http:  NewHTTPBackend(client, logger),
	}
}

// Fetch dispatches on the scheme of the configured path.
func (b *FileBackend) Fetch(ctx context.Context, src core.SourceConfig) (core.Document, error) {
	cfg, err := sourceAs[core.FileConfig](src)
	if err != nil {
		return nil, err
	}

	scheme, err := pathScheme(cfg.Path)
	if err != nil {
		return nil, &core.ConfigurationError{Message: fmt.Sprintf("invalid manifest path %q", cfg.Path), Err: err}
	}

	switch scheme {
	case "", "file":
		return b.local.Fetch(ctx, cfg)
	case "http", "https":
		return b.http.Fetch(ctx, cfg)
	default:
		return nil, &core.ConfigurationError{Err: fmt.Errorf("%w: %q", core.ErrUnknownScheme, scheme)}
	}
}

// pathScheme returns the lower-cased URI scheme of p. Bare filesystem paths,
// including Windows drive paths, have no scheme.
func pathScheme(p string) (string, error) {
	if windowsDrive.MatchString(p) || !strings.Contains(p, ":") {
		return "", nil
	}
	u, err := url.Parse(p)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Scheme), nil
}

// LocalBackend reads manifests from the local filesystem.
type LocalBackend struct {
	logger *slog.Logger
}

// NewLocalBackend creates a LocalBackend.
func NewLocalBackend(logger *slog.Logger) *LocalBackend {
	return &LocalBackend{logger: loggerOrDiscard(logger)}
}

// Fetch reads and decodes the file addressed by a FileConfig.
func (b *LocalBackend) Fetch(_ context.Context, src core.SourceConfig) (core.Document, error) {
	cfg, err := sourceAs[core.FileConfig](src)
	if err != nil {
		return nil, err
	}

	path, err := LocalPath(cfg.Path)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("reading manifest from local filesystem", "path", path)

	//nolint:gosec // Manifest paths come from user configuration, this is expected behavior
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.NewLoadError("file", path, core.ErrPathNotFound, nil)
		}
		return nil, core.NewLoadError("file", path, core.ErrTransport, err)
	}
	defer func() { _ = f.Close() }()

	return decodeDocument("file", path, f, CompressionFor(path))
}

// LocalPath converts a file URI or bare path into a filesystem path.
//
//	file:///abs/manifest.json        -> /abs/manifest.json
//	file://server/share/manifest.json -> //server/share/manifest.json
//	file:///C:/dbt/manifest.json     -> C:/dbt/manifest.json (Windows)
//	file:rel%20dir/manifest.json     -> rel dir/manifest.json
func LocalPath(raw string) (string, error) {
	scheme, err := pathScheme(raw)
	if err != nil {
		return "", &core.ConfigurationError{Message: fmt.Sprintf("invalid manifest path %q", raw), Err: err}
	}
	if scheme == "" {
		if raw == "" {
			return "", &core.ConfigurationError{Message: "manifest path is empty"}
		}
		return raw, nil
	}
	if scheme != "file" {
		return "", &core.ConfigurationError{Err: fmt.Errorf("%w: %q", core.ErrUnknownScheme, scheme)}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &core.ConfigurationError{Message: fmt.Sprintf("invalid manifest path %q", raw), Err: err}
	}

	var p string
	switch {
	case u.Opaque != "":
		p, err = url.PathUnescape(u.Opaque)
		if err != nil {
			return "", &core.ConfigurationError{Message: fmt.Sprintf("invalid manifest path %q", raw), Err: err}
		}
	case u.Host != "" && u.Host != "localhost":
		p = "//" + u.Host + u.Path
	default:
		p = u.Path
		if runtime.GOOS == "windows" && windowsDrive.MatchString(strings.TrimPrefix(p, "/")) {
			p = strings.TrimPrefix(p, "/")
		}
	}

	if p == "" {
		return "", &core.ConfigurationError{Message: fmt.Sprintf("manifest path %q has no path component", raw)}
	}
	return filepath.FromSlash(p), nil
}
