package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholasyager/dbt-loom/internal/backend"
	"github.com/nicholasyager/dbt-loom/internal/testutil"
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

func TestNewLoader_Kinds(t *testing.T) {
	l := NewLoader()
	assert.Equal(t, []core.Kind{
		core.KindAzure, core.KindDbtCloud, core.KindFile,
		core.KindGCS, core.KindS3, core.KindSnowflake,
	}, l.Kinds())
}

func TestLoader_LoadFile(t *testing.T) {
	p := testutil.WriteManifest(t, t.TempDir(), "manifest.json", testutil.Manifest("revenue", map[string]any{}))

	l := NewLoader(WithLogger(testutil.NewTestLogger(t)))
	doc, err := l.Load(context.Background(), core.ManifestReference{
		Name:   "revenue",
		Kind:   core.KindFile,
		Source: core.FileConfig{Path: p},
	})
	require.NoError(t, err)
	assert.Equal(t, "revenue", doc.ProjectName())
}

func TestLoader_WithBackend(t *testing.T) {
	var got core.SourceConfig
	fake := backend.Func(func(_ context.Context, src core.SourceConfig) (core.Document, error) {
		got = src
		return core.Document{"metadata": map[string]any{"project_name": "fake"}}, nil
	})

	l := NewLoader(WithBackend(core.KindS3, fake))
	src := core.S3Config{Bucket: "b", Key: "k"}
	doc, err := l.Load(context.Background(), core.ManifestReference{Name: "x", Kind: core.KindS3, Source: src})
	require.NoError(t, err)
	assert.Equal(t, "fake", doc.ProjectName())
	assert.Equal(t, src, got)
}

func TestLoader_UnknownKind(t *testing.T) {
	l := NewLoader(WithBackend(core.KindS3, nil))
	assert.NotContains(t, l.Kinds(), core.KindS3)

	_, err := l.Load(context.Background(), core.ManifestReference{
		Name: "x", Kind: core.KindS3, Source: core.S3Config{Bucket: "b", Key: "k"},
	})
	assert.ErrorIs(t, err, core.ErrUnknownKind)
	assert.ErrorContains(t, err, "registered: azure, dbt_cloud, file, gcs, snowflake")

	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "x", cfgErr.Reference)
}

func TestLoader_InvalidReference(t *testing.T) {
	l := NewLoader()

	tests := []struct {
		name string
		ref  core.ManifestReference
	}{
		{"no name", core.ManifestReference{Kind: core.KindFile, Source: core.FileConfig{Path: "m.json"}}},
		{"no source", core.ManifestReference{Name: "a", Kind: core.KindFile}},
		{"mismatched source", core.ManifestReference{Name: "a", Kind: core.KindS3, Source: core.FileConfig{Path: "m.json"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), tt.ref)
			var cfgErr *core.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoader_ConfigurationErrorNamesReference(t *testing.T) {
	l := NewLoader()
	_, err := l.Load(context.Background(), core.ManifestReference{
		Name: "legacy", Kind: core.KindFile, Source: core.FileConfig{Path: "ftp://host/manifest.json"},
	})
	assert.ErrorIs(t, err, core.ErrUnknownScheme)

	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "legacy", cfgErr.Reference)
}
