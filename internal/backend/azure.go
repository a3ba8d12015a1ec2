package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// AzureConnectionStringEnv names the environment variable holding an Azure
// Storage connection string. When set it takes precedence over the default
// credential chain.
const AzureConnectionStringEnv = "AZURE_STORAGE_CONNECTION_STRING"

// AzureBlobOpener opens the blob addressed by cfg for streaming.
type AzureBlobOpener func(ctx context.Context, cfg core.AzureConfig) (io.ReadCloser, error)

// AzureBackend reads manifests from Azure Blob Storage.
type AzureBackend struct {
	open   AzureBlobOpener
	logger *slog.Logger
}

// NewAzureBackend creates an AzureBackend. A nil opener uses an azblob client
// built by NewAzureClient.
func NewAzureBackend(open AzureBlobOpener, logger *slog.Logger) *AzureBackend {
	if open == nil {
		open = openAzureBlob
	}
	return &AzureBackend{open: open, logger: loggerOrDiscard(logger)}
}

// NewAzureClient builds a blob service client, from the connection string in
// AZURE_STORAGE_CONNECTION_STRING when present, otherwise for the account URL
// using the default Azure credential chain.
func NewAzureClient(account string) (*azblob.Client, error) {
	if cs := os.Getenv(AzureConnectionStringEnv); cs != "" {
		return azblob.NewClientFromConnectionString(cs, nil)
	}

	if account == "" {
		return nil, &core.ConfigurationError{Message: "azure references require account_name"}
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Azure credentials: %w", err)
	}
	return azblob.NewClient(fmt.Sprintf("https://%s.blob.core.windows.net/", account), cred, nil)
}

func openAzureBlob(ctx context.Context, cfg core.AzureConfig) (io.ReadCloser, error) {
	client, err := NewAzureClient(cfg.Account)
	if err != nil {
		return nil, err
	}
	resp, err := client.DownloadStream(ctx, cfg.Container, cfg.Blob, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Fetch downloads and decodes the configured blob.
func (b *AzureBackend) Fetch(ctx context.Context, src core.SourceConfig) (core.Document, error) {
	cfg, err := sourceAs[core.AzureConfig](src)
	if err != nil {
		return nil, err
	}
	if cfg.Container == "" || cfg.Blob == "" {
		return nil, &core.ConfigurationError{Message: "azure references require container_name and object_name"}
	}

	b.logger.Debug("fetching manifest from Azure Blob Storage",
		"account", cfg.Account, "container", cfg.Container, "blob", cfg.Blob)

	body, err := b.open(ctx, cfg)
	if err != nil {
		var cfgErr *core.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, core.NewLoadError("azure", cfg.Object(), azureReason(err), err)
	}
	defer func() { _ = body.Close() }()

	return decodeDocument("azure", cfg.Object(), body, CompressionFor(cfg.Blob))
}

// azureReason maps an Azure SDK error to a load error reason.
func azureReason(err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return core.ErrBucketNotFound
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return core.ErrObjectNotFound
	case bloberror.HasCode(err,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions):
		return core.ErrUnauthorized
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return core.ErrUnauthorized
	}

	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return core.ErrTransport
	}
	switch respErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrUnauthorized
	case http.StatusNotFound:
		return core.ErrObjectNotFound
	default:
		return core.ErrBadStatus
	}
}
