package backend

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholasyager/dbt-loom/internal/testutil"
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

func TestCompressionFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"manifest.json", ""},
		{"manifest.json.gz", SuffixGzip},
		{"MANIFEST.JSON.GZ", SuffixGzip},
		{"path/to/manifest.json.zst", SuffixZstd},
		{"manifest.gzip", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompressionFor(tt.name))
		})
	}
}

func TestDecodeDocument(t *testing.T) {
	raw := []byte(`{"metadata":{"project_name":"revenue"},"nodes":{"model.revenue.orders":{"version":2}}}`)

	tests := []struct {
		name        string
		body        []byte
		compression string
	}{
		{"plain", raw, ""},
		{"gzip", testutil.Gzip(t, raw), SuffixGzip},
		{"zstd", testutil.Zstd(t, raw), SuffixZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := decodeDocument("file", "manifest.json", bytes.NewReader(tt.body), tt.compression)
			require.NoError(t, err)
			assert.Equal(t, "revenue", doc.ProjectName())

			node, ok := doc.Nodes()["model.revenue.orders"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, json.Number("2"), node["version"])
		})
	}
}

func TestDecodeDocument_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		compression string
	}{
		{"invalid json", []byte(`{"nodes":`), ""},
		{"json null", []byte(`null`), ""},
		{"json array", []byte(`[1,2]`), ""},
		{"bad gzip", []byte(`not gzip`), SuffixGzip},
		{"gzip wrapping garbage", testutil.Gzip(t, []byte(`garbage`)), SuffixGzip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeDocument("s3", "s3://b/k", bytes.NewReader(tt.body), tt.compression)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrMalformedPayload)

			var loadErr *core.LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, "s3", loadErr.Source)
			assert.Equal(t, "s3://b/k", loadErr.Object)
		})
	}
}

func TestDecodeDocument_UnsupportedCompression(t *testing.T) {
	_, err := decodeDocument("file", "x", strings.NewReader(`{}`), ".bz2")
	assert.ErrorIs(t, err, core.ErrMalformedPayload)
}
