package core

import (
	"errors"
	"fmt"
)

// Configuration error reasons.
var (
	ErrUnknownKind       = errors.New("unknown manifest reference type")
	ErrUnknownScheme     = errors.New("unknown manifest path scheme")
	ErrMissingCredential = errors.New("missing credential")
)

// Load error reasons. A LoadError always carries exactly one of these.
var (
	ErrPathNotFound     = errors.New("path not found")
	ErrBucketNotFound   = errors.New("bucket not found")
	ErrObjectNotFound   = errors.New("object not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrBadStatus        = errors.New("unsuccessful response")
	ErrTransport        = errors.New("transport failure")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrEmptyResult      = errors.New("empty result")
)

// ConfigurationError reports a misconfigured manifest reference.
type ConfigurationError struct {
	Reference string
	Message   string
	Err       error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Reference != "" {
		msg = fmt.Sprintf("invalid configuration for manifest %q", e.Reference)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// LoadError reports a backend failure while retrieving a manifest.
type LoadError struct {
	// Source is the backend that failed (e.g. "s3", "http").
	Source string
	// Object names the path, URL, blob or stage file involved.
	Object string
	// Reason is one of the Err* load reasons above.
	Reason error
	// Err is the underlying cause, if any.
	Err error
}

// NewLoadError builds a LoadError.
func NewLoadError(source, object string, reason, err error) *LoadError {
	return &LoadError{Source: source, Object: object, Reason: reason, Err: err}
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s: %v: %s", e.Source, e.Reason, e.Object)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
