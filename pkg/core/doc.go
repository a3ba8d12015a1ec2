// Package core defines the shared language of dbt-loom.
//
// This package contains:
//   - The canonical Node record and its access/resource vocabularies
//   - Manifest references and the SourceConfig sum type
//   - The error taxonomy (ConfigurationError, LoadError and their reasons)
//   - Document, the decoded form of a manifest
//
// The Golden Rule: pkg/core imports only the standard library.
// All other packages depend on core, not the reverse.
package core
