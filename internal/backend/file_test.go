package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholasyager/dbt-loom/internal/testutil"
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

func TestLocalPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix path expectations")
	}

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "bare absolute", raw: "/tmp/manifest.json", want: "/tmp/manifest.json"},
		{name: "bare relative", raw: "target/manifest.json", want: "target/manifest.json"},
		{name: "file uri", raw: "file:///abs/manifest.json", want: "/abs/manifest.json"},
		{name: "file uri localhost", raw: "file://localhost/abs/manifest.json", want: "/abs/manifest.json"},
		{name: "file uri unc host", raw: "file://server/share/manifest.json", want: "//server/share/manifest.json"},
		{name: "opaque relative", raw: "file:rel%20dir/manifest.json", want: "rel dir/manifest.json"},
		{name: "escaped path", raw: "file:///data/my%20project/manifest.json", want: "/data/my project/manifest.json"},
		{name: "empty", raw: "", wantErr: true},
		{name: "no path", raw: "file://", wantErr: true},
		{name: "http scheme", raw: "http://example.com/manifest.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LocalPath(tt.raw)
			if tt.wantErr {
				var cfgErr *core.ConfigurationError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathScheme(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"/tmp/manifest.json", ""},
		{`C:\dbt\manifest.json`, ""},
		{"c:/dbt/manifest.json", ""},
		{"file:///tmp/manifest.json", "file"},
		{"HTTPS://example.com/m.json", "https"},
		{"ftp://example.com/m.json", "ftp"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := pathScheme(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileBackend_Local(t *testing.T) {
	dir := t.TempDir()
	doc := testutil.Manifest("revenue", map[string]any{})

	tests := []struct {
		name string
		file string
	}{
		{"plain", "manifest.json"},
		{"gzip", "manifest.json.gz"},
		{"zstd", "manifest.json.zst"},
	}

	b := NewFileBackend(nil, testutil.NewTestLogger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.WriteManifest(t, dir, tt.file, doc)

			got, err := b.Fetch(context.Background(), core.FileConfig{Path: p})
			require.NoError(t, err)
			assert.Equal(t, "revenue", got.ProjectName())

			got, err = b.Fetch(context.Background(), core.FileConfig{Path: "file://" + filepath.ToSlash(p)})
			require.NoError(t, err)
			assert.Equal(t, "revenue", got.ProjectName())
		})
	}
}

func TestFileBackend_Errors(t *testing.T) {
	b := NewFileBackend(nil, nil)
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "missing.json")
		_, err := b.Fetch(ctx, core.FileConfig{Path: missing})
		assert.ErrorIs(t, err, core.ErrPathNotFound)

		var loadErr *core.LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, missing, loadErr.Object)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := b.Fetch(ctx, core.FileConfig{Path: "ftp://example.com/manifest.json"})
		assert.ErrorIs(t, err, core.ErrUnknownScheme)
	})

	t.Run("wrong config variant", func(t *testing.T) {
		_, err := b.Fetch(ctx, core.S3Config{Bucket: "b", Key: "k"})
		var cfgErr *core.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestFileBackend_DispatchesHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(testutil.MarshalJSON(t, testutil.Manifest("remote", map[string]any{})))
	}))
	defer srv.Close()

	b := NewFileBackend(srv.Client(), nil)
	doc, err := b.Fetch(context.Background(), core.FileConfig{Path: srv.URL + "/manifest.json"})
	require.NoError(t, err)
	assert.Equal(t, "remote", doc.ProjectName())
}
