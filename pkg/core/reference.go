package core

import "fmt"

// Kind identifies which storage backend serves a manifest reference.
type Kind string

// Reference kinds.
const (
	KindFile      Kind = "file"
	KindS3        Kind = "s3"
	KindGCS       Kind = "gcs"
	KindAzure     Kind = "azure"
	KindDbtCloud  Kind = "dbt_cloud"
	KindSnowflake Kind = "snowflake"
)

// SourceConfig is the kind-specific addressing block of a manifest reference.
// The set of implementations is closed: one per Kind.
type SourceConfig interface {
	// Kind returns the reference kind this configuration belongs to.
	Kind() Kind
	// Object returns a human-readable name of the addressed object, used in errors.
	Object() string
	sourceConfig()
}

// FileConfig addresses a manifest by URI: file://, http:// or https://, or a bare path.
type FileConfig struct {
	Path string `mapstructure:"path"`
}

// S3Config addresses an object in an S3-compatible store.
type S3Config struct {
	Bucket          string `mapstructure:"bucket_name"`
	Key             string `mapstructure:"object_name"`
	CredentialsPath string `mapstructure:"credentials"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint_url"`
}

// GCSConfig addresses an object in Google Cloud Storage.
type GCSConfig struct {
	ProjectID                 string `mapstructure:"project_id"`
	Bucket                    string `mapstructure:"bucket_name"`
	ObjectName                string `mapstructure:"object_name"`
	CredentialsPath           string `mapstructure:"credentials"`
	ImpersonateServiceAccount string `mapstructure:"impersonate_service_account"`
}

// AzureConfig addresses a blob in Azure Blob Storage.
type AzureConfig struct {
	Account   string `mapstructure:"account_name"`
	Container string `mapstructure:"container_name"`
	Blob      string `mapstructure:"object_name"`
}

// DbtCloudConfig addresses the latest successful run of a dbt Cloud job.
type DbtCloudConfig struct {
	AccountID   int64  `mapstructure:"account_id"`
	JobID       int64  `mapstructure:"job_id"`
	Step        int    `mapstructure:"step"`
	APIEndpoint string `mapstructure:"api_endpoint"`
	Token       string `mapstructure:"token"`
}

// StageConfig addresses a file in a Snowflake stage.
type StageConfig struct {
	Stage     string `mapstructure:"stage"`
	StagePath string `mapstructure:"stage_path"`
}

func (FileConfig) Kind() Kind     { return KindFile }
func (S3Config) Kind() Kind       { return KindS3 }
func (GCSConfig) Kind() Kind      { return KindGCS }
func (AzureConfig) Kind() Kind    { return KindAzure }
func (DbtCloudConfig) Kind() Kind { return KindDbtCloud }
func (StageConfig) Kind() Kind    { return KindSnowflake }

func (c FileConfig) Object() string  { return c.Path }
func (c S3Config) Object() string    { return fmt.Sprintf("s3://%s/%s", c.Bucket, c.Key) }
func (c GCSConfig) Object() string   { return fmt.Sprintf("gs://%s/%s", c.Bucket, c.ObjectName) }
func (c AzureConfig) Object() string { return fmt.Sprintf("%s/%s/%s", c.Account, c.Container, c.Blob) }
func (c DbtCloudConfig) Object() string {
	return fmt.Sprintf("account %d job %d", c.AccountID, c.JobID)
}
func (c StageConfig) Object() string { return fmt.Sprintf("@%s/%s", c.Stage, c.StagePath) }

func (FileConfig) sourceConfig()     {}
func (S3Config) sourceConfig()       {}
func (GCSConfig) sourceConfig()      {}
func (AzureConfig) sourceConfig()    {}
func (DbtCloudConfig) sourceConfig() {}
func (StageConfig) sourceConfig()    {}

// DecodeSourceConfig builds the SourceConfig variant for kind, filling it
// through decode (typically a mapstructure decode of the raw config block).
func DecodeSourceConfig(kind Kind, decode func(target any) error) (SourceConfig, error) {
	switch kind {
	case KindFile:
		return decodeInto[FileConfig](decode)
	case KindS3:
		return decodeInto[S3Config](decode)
	case KindGCS:
		return decodeInto[GCSConfig](decode)
	case KindAzure:
		return decodeInto[AzureConfig](decode)
	case KindDbtCloud:
		return decodeInto[DbtCloudConfig](decode)
	case KindSnowflake:
		return decodeInto[StageConfig](decode)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decodeInto[T SourceConfig](decode func(target any) error) (SourceConfig, error) {
	var v T
	if err := decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// ManifestReference identifies one federated project's manifest origin.
type ManifestReference struct {
	Name             string
	Kind             Kind
	Source           SourceConfig
	ExcludedPackages []string
	// Optional references are skipped with a warning when they fail to load.
	Optional bool
}

// Validate checks that the reference is internally consistent.
func (r ManifestReference) Validate() error {
	if r.Name == "" {
		return &ConfigurationError{Message: "manifest reference name is required"}
	}
	if r.Source == nil {
		return &ConfigurationError{Reference: r.Name, Message: "manifest reference has no config"}
	}
	if r.Source.Kind() != r.Kind {
		return &ConfigurationError{
			Reference: r.Name,
			Message:   fmt.Sprintf("config block is for %q but reference type is %q", r.Source.Kind(), r.Kind),
		}
	}
	return nil
}
