package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// placeholder matches $VAR and ${VAR}.
var placeholder = regexp.MustCompile(`\$(\w+)|\$\{([^}]+)\}`)

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"enable-telemetry": "enable_telemetry",
	"http-timeout":     "http.timeout",
	"driver":           "export.driver",
	"dsn":              "export.dsn",
	"addr":             "server.addr",
}

// Interpolate replaces $VAR and ${VAR} with values from lookup. Unset
// variables expand to the empty string.
func Interpolate(s string, lookup func(string) string) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholder.FindStringSubmatch(match)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		return lookup(name)
	})
}

// ResolvePath returns the configuration file to read. An explicit path wins,
// then DBT_LOOM_CONFIG, then DefaultConfigFile. required is false only for
// the default, which may be absent.
func ResolvePath(explicit string) (path string, required bool) {
	if explicit != "" {
		return explicit, true
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, true
	}
	return DefaultConfigFile, false
}

// Load reads the configuration. Precedence (highest to lowest):
// flags > env vars > config file > defaults.
func Load(explicitPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file, interpolated before parsing
	path, required := ResolvePath(explicitPath)
	used := ""
	raw, err := file.Provider(path).ReadBytes()
	switch {
	case err == nil:
		data, err := yaml.Parser().Unmarshal([]byte(Interpolate(string(raw), os.Getenv)))
		if err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
		if err := k.Load(confmap.Provider(data, ""), nil); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
		used = path
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	// 3. Environment variables (LOOM_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	return &cfg, nil
}

// envKey transforms LOOM_HTTP_TIMEOUT into http.timeout.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range envSections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// References converts the manifests list into validated references.
func (c *Config) References() ([]core.ManifestReference, error) {
	refs := make([]core.ManifestReference, 0, len(c.Manifests))
	seen := make(map[string]struct{}, len(c.Manifests))

	for i, m := range c.Manifests {
		if m.Name == "" {
			return nil, &core.ConfigurationError{Message: fmt.Sprintf("manifests[%d] has no name", i)}
		}
		if _, dup := seen[m.Name]; dup {
			return nil, &core.ConfigurationError{Reference: m.Name, Message: "duplicate manifest name"}
		}
		seen[m.Name] = struct{}{}

		kind := core.Kind(strings.ToLower(m.Type))
		src, err := core.DecodeSourceConfig(kind, func(target any) error {
			return decodeBlock(m.Config, target)
		})
		if err != nil {
			return nil, &core.ConfigurationError{Reference: m.Name, Err: err}
		}

		ref := core.ManifestReference{
			Name:             m.Name,
			Kind:             kind,
			Source:           src,
			ExcludedPackages: m.ExcludedPackages,
			Optional:         m.Optional,
		}
		if err := ref.Validate(); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ResourceTypes returns ExcludedTypes as resource types.
func (c *Config) ResourceTypes() []core.ResourceType {
	out := make([]core.ResourceType, 0, len(c.ExcludedTypes))
	for _, t := range c.ExcludedTypes {
		out = append(out, core.ResourceType(strings.ToLower(t)))
	}
	return out
}

// decodeBlock decodes a kind-specific config block. Unknown keys are
// rejected so typos surface as configuration errors.
func decodeBlock(block map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(block)
}
