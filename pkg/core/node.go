package core

import (
	"fmt"
	"strings"
	"time"
)

// ResourceType is the kind of a build-graph entity, as spelled in the
// leading segment of its unique id.
type ResourceType string

// Resource type constants.
const (
	ResourceModel        ResourceType = "model"
	ResourceSeed         ResourceType = "seed"
	ResourceSnapshot     ResourceType = "snapshot"
	ResourceAnalysis     ResourceType = "analysis"
	ResourceOperation    ResourceType = "operation"
	ResourceTest         ResourceType = "test"
	ResourceMacro        ResourceType = "macro"
	ResourceSource       ResourceType = "source"
	ResourceSQLOperation ResourceType = "sql_operation"
	ResourceRPC          ResourceType = "rpc"
)

// Federatable reports whether nodes of this type may be imported into
// another project. Tests and macros never are.
func (rt ResourceType) Federatable() bool {
	return rt != ResourceTest && rt != ResourceMacro
}

// AccessType is the visibility of a node to other projects.
type AccessType string

// Access levels.
const (
	AccessPublic    AccessType = "public"
	AccessProtected AccessType = "protected"
	AccessPrivate   AccessType = "private"
)

// DefaultAccess is applied when a manifest does not declare an access level.
const DefaultAccess = AccessProtected

// ParseAccess converts a raw access value into an AccessType.
// Empty input yields DefaultAccess.
func ParseAccess(s string) (AccessType, error) {
	switch AccessType(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultAccess, nil
	case AccessPublic:
		return AccessPublic, nil
	case AccessProtected:
		return AccessProtected, nil
	case AccessPrivate:
		return AccessPrivate, nil
	default:
		return "", fmt.Errorf("unknown access level %q", s)
	}
}

// Node is the canonical record for one federated entity.
// Everything downstream of normalization works with Node only.
type Node struct {
	Name            string       `json:"name" yaml:"name"`
	PackageName     string       `json:"package_name" yaml:"package_name"`
	UniqueID        string       `json:"unique_id" yaml:"unique_id"`
	ResourceType    ResourceType `json:"resource_type" yaml:"resource_type"`
	SchemaName      string       `json:"schema" yaml:"schema"`
	Database        string       `json:"database,omitempty" yaml:"database,omitempty"`
	RelationName    string       `json:"relation_name,omitempty" yaml:"relation_name,omitempty"`
	Version         string       `json:"version,omitempty" yaml:"version,omitempty"`
	LatestVersion   string       `json:"latest_version,omitempty" yaml:"latest_version,omitempty"`
	DeprecationDate *time.Time   `json:"deprecation_date,omitempty" yaml:"deprecation_date,omitempty"`
	Access          AccessType   `json:"access" yaml:"access"`
	Group           string       `json:"group,omitempty" yaml:"group,omitempty"`
	GeneratedAt     time.Time    `json:"generated_at" yaml:"generated_at"`
	DependsOn       []string     `json:"depends_on" yaml:"depends_on"`
	Enabled         bool         `json:"enabled" yaml:"enabled"`
}

// Identifier returns the relation identifier of the node: the last segment
// of RelationName with quoting removed, or Name when no relation is known.
func (n Node) Identifier() string {
	if n.RelationName == "" {
		return n.Name
	}
	parts := strings.Split(n.RelationName, ".")
	return strings.NewReplacer(`"`, "", "`", "").Replace(parts[len(parts)-1])
}

// IsModel reports whether the node is a model.
func (n Node) IsModel() bool {
	return n.ResourceType == ResourceModel
}

// UniqueID builds the canonical unique id "{type}.{package}.{name}[.v{version}]".
func UniqueID(rt ResourceType, packageName, name, version string) string {
	id := fmt.Sprintf("%s.%s.%s", rt, packageName, name)
	if version != "" {
		id += ".v" + version
	}
	return id
}

// IDPrefix returns the leading dot segment of a unique id.
func IDPrefix(uniqueID string) string {
	prefix, _, _ := strings.Cut(uniqueID, ".")
	return prefix
}
