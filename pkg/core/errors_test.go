package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadError_Is(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("loading manifest %q: %w", "revenue",
		NewLoadError("s3", "s3://bucket/manifest.json", ErrObjectNotFound, cause))

	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrBucketNotFound)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "s3", loadErr.Source)
	assert.Contains(t, err.Error(), "s3://bucket/manifest.json")
}

func TestLoadError_NilCause(t *testing.T) {
	err := NewLoadError("file", "/tmp/missing.json", ErrPathNotFound, nil)
	assert.ErrorIs(t, err, ErrPathNotFound)
	assert.Equal(t, "file: path not found: /tmp/missing.json", err.Error())
}

func TestConfigurationError(t *testing.T) {
	err := &ConfigurationError{Reference: "revenue", Err: fmt.Errorf("%w: %q", ErrUnknownKind, "ftp")}
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Contains(t, err.Error(), `manifest "revenue"`)
}

func TestManifestReference_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ref     ManifestReference
		wantErr bool
	}{
		{
			name: "valid",
			ref:  ManifestReference{Name: "a", Kind: KindFile, Source: FileConfig{Path: "manifest.json"}},
		},
		{
			name:    "missing name",
			ref:     ManifestReference{Kind: KindFile, Source: FileConfig{Path: "manifest.json"}},
			wantErr: true,
		},
		{
			name:    "missing source",
			ref:     ManifestReference{Name: "a", Kind: KindFile},
			wantErr: true,
		},
		{
			name:    "kind mismatch",
			ref:     ManifestReference{Name: "a", Kind: KindS3, Source: FileConfig{Path: "manifest.json"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if tt.wantErr {
				var cfgErr *ConfigurationError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDecodeSourceConfig(t *testing.T) {
	sc, err := DecodeSourceConfig(KindGCS, func(target any) error {
		cfg := target.(*GCSConfig)
		cfg.Bucket = "artifacts"
		cfg.ObjectName = "manifest.json"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, GCSConfig{Bucket: "artifacts", ObjectName: "manifest.json"}, sc)
	assert.Equal(t, "gs://artifacts/manifest.json", sc.Object())

	_, err = DecodeSourceConfig("ftp", func(any) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownKind)
}
