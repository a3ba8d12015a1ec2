package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// GCSObject is an open object read from Google Cloud Storage.
type GCSObject struct {
	Body io.ReadCloser
	// ContentEncoding is the stored encoding of the object, e.g. "gzip".
	ContentEncoding string
}

// GCSOpener opens the object addressed by cfg.
type GCSOpener func(ctx context.Context, cfg core.GCSConfig) (*GCSObject, error)

// GCSBackend reads manifests from Google Cloud Storage.
type GCSBackend struct {
	open   GCSOpener
	logger *slog.Logger
}

// NewGCSBackend creates a GCSBackend. A nil opener uses the storage client
// with credentials resolved by GCSClientOptions.
func NewGCSBackend(open GCSOpener, logger *slog.Logger) *GCSBackend {
	logger = loggerOrDiscard(logger)
	if open == nil {
		open = func(ctx context.Context, cfg core.GCSConfig) (*GCSObject, error) {
			return openGCSObject(ctx, cfg, logger)
		}
	}
	return &GCSBackend{open: open, logger: logger}
}

// Fetch downloads and decodes the configured object.
func (b *GCSBackend) Fetch(ctx context.Context, src core.SourceConfig) (core.Document, error) {
	cfg, err := sourceAs[core.GCSConfig](src)
	if err != nil {
		return nil, err
	}
	if cfg.Bucket == "" || cfg.ObjectName == "" {
		return nil, &core.ConfigurationError{Message: "gcs references require bucket_name and object_name"}
	}

	b.logger.Debug("fetching manifest from GCS",
		"project", cfg.ProjectID, "bucket", cfg.Bucket, "object", cfg.ObjectName)

	obj, err := b.open(ctx, cfg)
	if err != nil {
		return nil, core.NewLoadError("gcs", cfg.Object(), gcsReason(err), err)
	}
	defer func() { _ = obj.Body.Close() }()

	compression := CompressionFor(cfg.ObjectName)
	if compression == "" && obj.ContentEncoding == "gzip" {
		compression = SuffixGzip
	}
	return decodeDocument("gcs", cfg.Object(), obj.Body, compression)
}

// GCSClientOptions resolves client credentials for cfg. A credentials file
// that does not exist falls back to application default credentials. When a
// service account is named, a read-only impersonated token source is built on
// top of the base credentials.
func GCSClientOptions(ctx context.Context, cfg core.GCSConfig, logger *slog.Logger) ([]option.ClientOption, error) {
	logger = loggerOrDiscard(logger)

	var base []option.ClientOption
	if cfg.CredentialsPath != "" {
		if _, err := os.Stat(cfg.CredentialsPath); err != nil {
			logger.Warn("GCS credentials file not found, using application default credentials",
				"path", cfg.CredentialsPath)
		} else {
			base = append(base, option.WithCredentialsFile(cfg.CredentialsPath))
		}
	}

	if cfg.ImpersonateServiceAccount == "" {
		return base, nil
	}

	logger.Info("impersonating service account for GCS access", "account", cfg.ImpersonateServiceAccount)
	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: cfg.ImpersonateServiceAccount,
		Scopes:          []string{storage.ScopeReadOnly},
	}, base...)
	if err != nil {
		return nil, fmt.Errorf("failed to impersonate %s: %w", cfg.ImpersonateServiceAccount, err)
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}

func openGCSObject(ctx context.Context, cfg core.GCSConfig, logger *slog.Logger) (*GCSObject, error) {
	opts, err := GCSClientOptions(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	bucket := client.Bucket(cfg.Bucket)
	r, err := bucket.Object(cfg.ObjectName).ReadCompressed(true).NewReader(ctx)
	if err != nil {
		// Object reads report a missing bucket as a missing object.
		if errors.Is(err, storage.ErrObjectNotExist) {
			if _, attrsErr := bucket.Attrs(ctx); errors.Is(attrsErr, storage.ErrBucketNotExist) {
				err = attrsErr
			}
		}
		_ = client.Close()
		return nil, err
	}

	return &GCSObject{
		Body:            &clientReader{ReadCloser: r, client: client},
		ContentEncoding: r.Attrs.ContentEncoding,
	}, nil
}

// clientReader closes the storage client together with the object reader.
type clientReader struct {
	io.ReadCloser
	client io.Closer
}

func (r *clientReader) Close() error {
	return errors.Join(r.ReadCloser.Close(), r.client.Close())
}

// gcsReason maps a GCS error to a load error reason.
func gcsReason(err error) error {
	switch {
	case errors.Is(err, storage.ErrBucketNotExist):
		return core.ErrBucketNotFound
	case errors.Is(err, storage.ErrObjectNotExist):
		return core.ErrObjectNotFound
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return core.ErrTransport
	}
	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrUnauthorized
	case http.StatusNotFound:
		return core.ErrObjectNotFound
	default:
		return core.ErrBadStatus
	}
}
