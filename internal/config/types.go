// Package config loads the loom configuration document.
//
// Values are layered with koanf, lowest to highest precedence: defaults,
// the YAML file (after $VAR and ${VAR} interpolation), LOOM_ environment
// variables, then explicitly set command-line flags.
package config

import (
	"time"

	"github.com/nicholasyager/dbt-loom/internal/backend"
)

// Config is the decoded loom configuration.
type Config struct {
	// EnableTelemetry is carried for compatibility. Nothing is reported.
	EnableTelemetry bool                     `koanf:"enable_telemetry"`
	Manifests       []ManifestConfig         `koanf:"manifests"`
	Warehouse       backend.WarehouseProfile `koanf:"warehouse"`
	HTTP            HTTPConfig               `koanf:"http"`
	Export          ExportConfig             `koanf:"export"`
	Server          ServerConfig             `koanf:"server"`
	// ExcludedTypes lists resource types never federated, in addition to
	// tests and macros.
	ExcludedTypes []string `koanf:"excluded_types"`

	// File is the configuration file that was read, or "" when none was.
	File string `koanf:"-"`
}

// ManifestConfig is one entry of the manifests list.
type ManifestConfig struct {
	Name             string         `koanf:"name"`
	Type             string         `koanf:"type"`
	Optional         bool           `koanf:"optional"`
	ExcludedPackages []string       `koanf:"excluded_packages"`
	Config           map[string]any `koanf:"config"`
}

// HTTPConfig configures the client used by http and dbt_cloud references.
type HTTPConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// ExportConfig configures `loom export`.
type ExportConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// ServerConfig configures `loom serve`.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}
