package testutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// Manifest builds a minimal manifest document for project with the given
// nodes keyed by unique id.
func Manifest(project string, nodes map[string]any) map[string]any {
	return map[string]any{
		"metadata": map[string]any{
			"project_name": project,
			"generated_at": "2024-05-01T12:00:00.000000Z",
		},
		"nodes": nodes,
	}
}

// Model builds a raw model node entry for a manifest.
func Model(pkg, name string, extra map[string]any) map[string]any {
	n := map[string]any{
		"name":          name,
		"package_name":  pkg,
		"unique_id":     "model." + pkg + "." + name,
		"resource_type": "model",
		"schema":        "analytics",
		"database":      "warehouse",
		"relation_name": `"warehouse"."analytics"."` + name + `"`,
		"depends_on":    map[string]any{"nodes": []any{}},
	}
	for k, v := range extra {
		n[k] = v
	}
	return n
}

// MarshalJSON encodes v, failing the test on error.
func MarshalJSON(t testing.TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// Gzip compresses data.
func Gzip(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// Zstd compresses data.
func Zstd(t testing.TB, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(data, nil)
}

// WriteManifest writes v as JSON to dir/name and returns the path. Names
// ending in .gz or .zst are compressed accordingly.
func WriteManifest(t testing.TB, dir, name string, v any) string {
	t.Helper()
	data := MarshalJSON(t, v)
	switch {
	case strings.HasSuffix(name, ".gz"):
		data = Gzip(t, data)
	case strings.HasSuffix(name, ".zst"):
		data = Zstd(t, data)
	}
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}
