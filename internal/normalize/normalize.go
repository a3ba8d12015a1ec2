// Package normalize converts the raw node collection of a manifest document
// into canonical core.Node records.
//
// Raw nodes differ across manifest schema versions. Normalization applies
// the defaulting and repair rules once so nothing downstream reads raw data:
//
//   - access comes from "access", then "config.access", then protected;
//     an unrecognised level is logged and treated as protected
//   - numeric version and latest_version become strings
//   - resource_type is rewritten to match the unique id prefix
//   - source dependencies are dropped from depends_on
//   - enabled comes from "enabled", then "config.enabled", then true
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// Options configures normalization.
type Options struct {
	// Now supplies generated_at when neither the node nor the document
	// metadata carries one. Defaults to time.Now in UTC.
	Now func() time.Time

	// Logger receives warnings about recoverable node values. Nil discards them.
	Logger *slog.Logger
}

// NodeError reports a raw node that cannot be converted.
type NodeError struct {
	ID    string
	Field string
	Err   error
}

func (e *NodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("node %q: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("node %q: field %q: %v", e.ID, e.Field, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

var errMissing = errors.New("is required")

// Normalize converts every federatable node of doc. Nodes are visited in id
// order so the first error reported is deterministic.
func Normalize(doc core.Document, opts Options) (map[string]core.Node, error) {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	fallback, err := optionalTime(doc.Metadata(), "generated_at")
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	generatedAt := opts.Now()
	if fallback != nil {
		generatedAt = *fallback
	}

	raw := doc.Nodes()
	out := make(map[string]core.Node, len(raw))
	for _, id := range slices.Sorted(maps.Keys(raw)) {
		if !core.ResourceType(core.IDPrefix(id)).Federatable() {
			continue
		}
		entry, ok := raw[id].(map[string]any)
		if !ok || len(entry) == 0 {
			continue
		}

		node, err := convert(id, entry, generatedAt, opts.Logger)
		if err != nil {
			return nil, err
		}
		out[id] = node
	}
	return out, nil
}

// Node converts one raw node keyed by id. generatedAt is used when the node
// has no generated_at of its own.
func Node(id string, raw map[string]any, generatedAt time.Time) (core.Node, error) {
	return convert(id, raw, generatedAt, slog.New(slog.DiscardHandler))
}

func convert(id string, raw map[string]any, generatedAt time.Time, logger *slog.Logger) (core.Node, error) {
	n := core.Node{UniqueID: id, Enabled: true}
	fail := func(field string, err error) (core.Node, error) {
		return core.Node{}, &NodeError{ID: id, Field: field, Err: err}
	}

	var err error
	if uid, _ := raw["unique_id"].(string); uid != "" {
		n.UniqueID = uid
	}
	n.ResourceType = core.ResourceType(core.IDPrefix(n.UniqueID))

	for _, f := range []struct {
		key  string
		dst  *string
		need bool
	}{
		{"name", &n.Name, true},
		{"package_name", &n.PackageName, true},
		{"schema", &n.SchemaName, true},
		{"database", &n.Database, false},
		{"relation_name", &n.RelationName, false},
		{"group", &n.Group, false},
	} {
		*f.dst, err = stringField(raw, f.key)
		if err != nil {
			return fail(f.key, err)
		}
		if f.need && *f.dst == "" {
			return fail(f.key, errMissing)
		}
	}

	if n.Version, err = versionString(raw["version"]); err != nil {
		return fail("version", err)
	}
	if n.LatestVersion, err = versionString(raw["latest_version"]); err != nil {
		return fail("latest_version", err)
	}

	config, _ := raw["config"].(map[string]any)

	access, err := stringField(raw, "access")
	if err != nil {
		return fail("access", err)
	}
	if access == "" {
		if access, err = stringField(config, "access"); err != nil {
			return fail("config.access", err)
		}
	}
	if n.Access, err = core.ParseAccess(access); err != nil {
		logger.Warn("unknown access level, using default",
			"node", id, "access", access, "default", core.DefaultAccess)
		n.Access = core.DefaultAccess
	}

	if v, ok := raw["enabled"].(bool); ok {
		n.Enabled = v
	} else if v, ok := config["enabled"].(bool); ok {
		n.Enabled = v
	}

	if n.DeprecationDate, err = optionalTime(raw, "deprecation_date"); err != nil {
		return fail("deprecation_date", err)
	}
	ts, err := optionalTime(raw, "generated_at")
	if err != nil {
		return fail("generated_at", err)
	}
	n.GeneratedAt = generatedAt
	if ts != nil {
		n.GeneratedAt = *ts
	}

	n.DependsOn = dependsOn(raw)
	return n, nil
}

func stringField(m map[string]any, key string) (string, error) {
	switch v := m[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

// versionString renders a version the way it is written in the manifest:
// 2 stays "2" and 2.0 stays "2.0".
func versionString(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if v == math.Trunc(v) && !strings.Contains(s, ".") {
			s += ".0"
		}
		return s, nil
	default:
		return "", fmt.Errorf("expected string or number, got %T", v)
	}
}

func dependsOn(raw map[string]any) []string {
	block, _ := raw["depends_on"].(map[string]any)
	ids, _ := block["nodes"].([]any)

	out := make([]string, 0, len(ids))
	for _, v := range ids {
		id, ok := v.(string)
		if !ok || core.ResourceType(core.IDPrefix(id)) == core.ResourceSource {
			continue
		}
		out = append(out, id)
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

func optionalTime(m map[string]any, key string) (*time.Time, error) {
	s, err := stringField(m, key)
	if err != nil || s == "" {
		return nil, err
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", s)
}
