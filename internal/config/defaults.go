package config

// Default configuration values.
const (
	// EnvConfigPath names the environment variable that overrides the
	// configuration file path.
	EnvConfigPath = "DBT_LOOM_CONFIG"

	// DefaultConfigFile is read when no path is given.
	DefaultConfigFile = "dbt_loom.config.yml"

	// EnvPrefix is the prefix of environment overrides, e.g. LOOM_HTTP_TIMEOUT.
	EnvPrefix = "LOOM_"

	DefaultExportDriver = "sqlite"
	DefaultExportDSN    = "loom.db"
	DefaultServerAddr   = "127.0.0.1:8765"
	DefaultHTTPTimeout  = "0s"
)

// defaults are loaded before any other layer.
func defaults() map[string]any {
	return map[string]any{
		"enable_telemetry": false,
		"http.timeout":     DefaultHTTPTimeout,
		"export.driver":    DefaultExportDriver,
		"export.dsn":       DefaultExportDSN,
		"server.addr":      DefaultServerAddr,
	}
}

// envSections are the nested sections reachable through LOOM_ variables.
// LOOM_HTTP_TIMEOUT maps to http.timeout; LOOM_ENABLE_TELEMETRY stays flat.
var envSections = []string{"http", "export", "server", "warehouse"}
