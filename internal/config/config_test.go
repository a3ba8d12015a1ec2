package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

const sample = `
enable_telemetry: true
excluded_types: [seed]
manifests:
  - name: revenue
    type: file
    excluded_packages: [dbt_project_evaluator]
    config:
      path: ${MANIFEST_ROOT}/revenue/manifest.json
  - name: platform
    type: s3
    optional: true
    config:
      bucket_name: artifacts
      object_name: platform/manifest.json.gz
      region: eu-west-1
  - name: marketing
    type: gcs
    config:
      project_id: mkt
      bucket_name: mkt-artifacts
      object_name: manifest.json
      impersonate_service_account: loom@mkt.iam.gserviceaccount.com
  - name: ops
    type: azure
    config:
      account_name: opsstore
      container_name: manifests
      object_name: manifest.json
  - name: core
    type: dbt_cloud
    config:
      account_id: "1234"
      job_id: 42
      step: 2
  - name: finance
    type: snowflake
    config:
      stage: loom_stage
      stage_path: finance/manifest.json
warehouse:
  account: xy12345
  user: $SNOWFLAKE_USER
  password: ${SNOWFLAKE_PASSWORD}
http:
  timeout: 30s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "loom.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestInterpolate(t *testing.T) {
	env := map[string]string{"USER": "loader", "ROOT": "/data"}
	lookup := func(k string) string { return env[k] }

	tests := []struct {
		in   string
		want string
	}{
		{"$USER", "loader"},
		{"${ROOT}/manifest.json", "/data/manifest.json"},
		{"$ROOT/$USER", "/data/loader"},
		{"${MISSING}x", "x"},
		{"$MISSING", ""},
		{"no placeholders", "no placeholders"},
		{"cost: 5 $", "cost: 5 $"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.in, lookup))
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("MANIFEST_ROOT", "/srv/manifests")
	t.Setenv("SNOWFLAKE_USER", "loader")
	t.Setenv("SNOWFLAKE_PASSWORD", "hunter2")

	p := writeConfig(t, sample)
	cfg, err := Load(p, nil)
	require.NoError(t, err)

	assert.Equal(t, p, cfg.File)
	assert.True(t, cfg.EnableTelemetry)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "loader", cfg.Warehouse.User)
	assert.Equal(t, "hunter2", cfg.Warehouse.Password)
	assert.Equal(t, DefaultExportDriver, cfg.Export.Driver)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, []core.ResourceType{core.ResourceSeed}, cfg.ResourceTypes())

	refs, err := cfg.References()
	require.NoError(t, err)
	require.Len(t, refs, 6)

	assert.Equal(t, core.FileConfig{Path: "/srv/manifests/revenue/manifest.json"}, refs[0].Source)
	assert.Equal(t, []string{"dbt_project_evaluator"}, refs[0].ExcludedPackages)

	assert.True(t, refs[1].Optional)
	assert.Equal(t, core.S3Config{Bucket: "artifacts", Key: "platform/manifest.json.gz", Region: "eu-west-1"}, refs[1].Source)

	assert.Equal(t, core.GCSConfig{
		ProjectID: "mkt", Bucket: "mkt-artifacts", ObjectName: "manifest.json",
		ImpersonateServiceAccount: "loom@mkt.iam.gserviceaccount.com",
	}, refs[2].Source)
	assert.Equal(t, core.AzureConfig{Account: "opsstore", Container: "manifests", Blob: "manifest.json"}, refs[3].Source)
	assert.Equal(t, core.DbtCloudConfig{AccountID: 1234, JobID: 42, Step: 2}, refs[4].Source)
	assert.Equal(t, core.StageConfig{Stage: "loom_stage", StagePath: "finance/manifest.json"}, refs[5].Source)
}

func TestLoad_Precedence(t *testing.T) {
	p := writeConfig(t, "http:\n  timeout: 30s\nexport:\n  driver: postgres\n")
	t.Setenv("LOOM_HTTP_TIMEOUT", "45s")
	t.Setenv("LOOM_EXPORT_DSN", "postgres://localhost/loom")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("http-timeout", 0, "")
	flags.String("addr", "", "")
	flags.String("unrelated", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", ":9000", "--unrelated", "x"}))

	cfg, err := Load(p, flags)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.HTTP.Timeout, "env overrides file")
	assert.Equal(t, "postgres", cfg.Export.Driver, "file overrides defaults")
	assert.Equal(t, "postgres://localhost/loom", cfg.Export.DSN)
	assert.Equal(t, ":9000", cfg.Server.Addr, "flags override defaults")

	require.NoError(t, flags.Set("http-timeout", "5s"))
	cfg, err = Load(p, flags)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout, "flags override env")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Run("default path may be absent", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv(EnvConfigPath, "")

		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Empty(t, cfg.File)
		assert.Empty(t, cfg.Manifests)
	})

	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yml"), nil)
		assert.Error(t, err)
	})

	t.Run("env path must exist", func(t *testing.T) {
		t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yml"))
		_, err := Load("", nil)
		assert.Error(t, err)
	})
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	p, required := ResolvePath("")
	assert.Equal(t, DefaultConfigFile, p)
	assert.False(t, required)

	t.Setenv(EnvConfigPath, "/etc/loom.yml")
	p, required = ResolvePath("")
	assert.Equal(t, "/etc/loom.yml", p)
	assert.True(t, required)

	p, _ = ResolvePath("./explicit.yml")
	assert.Equal(t, "./explicit.yml", p)
}

func TestReferences_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "unknown type",
			cfg:     Config{Manifests: []ManifestConfig{{Name: "a", Type: "paradime"}}},
			wantErr: core.ErrUnknownKind,
		},
		{
			name: "missing name",
			cfg:  Config{Manifests: []ManifestConfig{{Type: "file"}}},
		},
		{
			name: "duplicate name",
			cfg: Config{Manifests: []ManifestConfig{
				{Name: "a", Type: "file", Config: map[string]any{"path": "a.json"}},
				{Name: "a", Type: "file", Config: map[string]any{"path": "b.json"}},
			}},
		},
		{
			name: "unknown key",
			cfg:  Config{Manifests: []ManifestConfig{{Name: "a", Type: "s3", Config: map[string]any{"bucket": "x"}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.References()
			var cfgErr *core.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "http.timeout", envKey("LOOM_HTTP_TIMEOUT"))
	assert.Equal(t, "enable_telemetry", envKey("LOOM_ENABLE_TELEMETRY"))
	assert.Equal(t, "warehouse.account", envKey("LOOM_WAREHOUSE_ACCOUNT"))
}
