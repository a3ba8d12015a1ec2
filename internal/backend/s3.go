package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// S3API is the subset of the S3 client used to read manifests.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ClientFactory builds an S3 client for one reference.
type S3ClientFactory func(ctx context.Context, cfg core.S3Config) (S3API, error)

// S3Backend reads manifests from S3-compatible object stores.
type S3Backend struct {
	newClient S3ClientFactory
	logger    *slog.Logger
}

// NewS3Backend creates an S3Backend. A nil factory uses the AWS default
// configuration chain.
func NewS3Backend(factory S3ClientFactory, logger *slog.Logger) *S3Backend {
	if factory == nil {
		factory = NewS3Client
	}
	return &S3Backend{newClient: factory, logger: loggerOrDiscard(logger)}
}

// NewS3Client builds an S3 client. Credentials come from the configured
// shared credentials file when set, otherwise from the default chain
// (environment, shared config, instance role). An endpoint override switches
// to path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, cfg core.S3Config) (S3API, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.CredentialsPath != "" {
		opts = append(opts, awsconfig.WithSharedCredentialsFiles([]string{cfg.CredentialsPath}))
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Fetch downloads and decodes the configured object.
func (b *S3Backend) Fetch(ctx context.Context, src core.SourceConfig) (core.Document, error) {
	cfg, err := sourceAs[core.S3Config](src)
	if err != nil {
		return nil, err
	}
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, &core.ConfigurationError{Message: "s3 references require bucket_name and object_name"}
	}

	client, err := b.newClient(ctx, cfg)
	if err != nil {
		return nil, core.NewLoadError("s3", cfg.Object(), core.ErrUnauthorized, err)
	}

	b.logger.Debug("fetching manifest from S3", "bucket", cfg.Bucket, "key", cfg.Key)

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(cfg.Key),
	})
	if err != nil {
		return nil, core.NewLoadError("s3", cfg.Object(), s3Reason(err), err)
	}
	defer func() { _ = out.Body.Close() }()

	return decodeDocument("s3", cfg.Object(), out.Body, CompressionFor(cfg.Key))
}

// s3Reason maps an S3 API error to a load error reason.
func s3Reason(err error) error {
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return core.ErrBucketNotFound
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return core.ErrObjectNotFound
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return core.ErrTransport
	}
	switch apiErr.ErrorCode() {
	case "NoSuchBucket":
		return core.ErrBucketNotFound
	case "NoSuchKey", "NotFound":
		return core.ErrObjectNotFound
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return core.ErrUnauthorized
	default:
		return core.ErrBadStatus
	}
}
