// Package faults defines the typed failure taxonomy surfaced by the write
// path. Every failure carries machine-readable metadata and matches a
// sentinel via errors.Is so callers can branch without string inspection.
package faults

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is.
var (
	// ErrValidation marks client-input failures detected by the pipeline.
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamUnavailable marks connection-level failures talking to an
	// upstream service; the caller may retry later.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNotFoundUpstream marks a referenced entity an upstream reported as
	// absent. This is a normal outcome, not a fault of the upstream.
	ErrNotFoundUpstream = errors.New("not found upstream")
	// ErrAlreadyExists marks a storage uniqueness race.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAuthorizationDenied marks an authenticated principal lacking the
	// required access.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrUnauthenticated marks a request without a valid principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrDuplicateKey is returned by repositories on uniqueness violations.
	ErrDuplicateKey = errors.New("duplicate key")
)

// ValidationFailure reports a single failed check on the inbound request.
type ValidationFailure struct {
	Field  string
	Reason string
}

func (f *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed: field %q: %s", f.Field, f.Reason)
}

// Is matches ErrValidation.
func (f *ValidationFailure) Is(target error) bool { return target == ErrValidation }

// NewValidationFailure builds a ValidationFailure for the given field.
func NewValidationFailure(field, reason string) error {
	return &ValidationFailure{Field: field, Reason: reason}
}

// UpstreamUnavailable reports a connection-level failure for a named
// upstream service.
type UpstreamUnavailable struct {
	Service string
	Cause   error
}

func (f *UpstreamUnavailable) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("upstream unavailable: service %q: %v", f.Service, f.Cause)
	}
	return fmt.Sprintf("upstream unavailable: service %q", f.Service)
}

// Is matches ErrUpstreamUnavailable.
func (f *UpstreamUnavailable) Is(target error) bool { return target == ErrUpstreamUnavailable }

// Unwrap exposes the transport-level cause.
func (f *UpstreamUnavailable) Unwrap() error { return f.Cause }

// NewUpstreamUnavailable wraps a transport failure for the named service.
func NewUpstreamUnavailable(service string, cause error) error {
	return &UpstreamUnavailable{Service: service, Cause: cause}
}

// NotFoundUpstream reports that a referenced entity does not exist in the
// named upstream service.
type NotFoundUpstream struct {
	Service string
	ID      string
}

func (f *NotFoundUpstream) Error() string {
	return fmt.Sprintf("not found upstream: service %q has no entity %q", f.Service, f.ID)
}

// Is matches ErrNotFoundUpstream.
func (f *NotFoundUpstream) Is(target error) bool { return target == ErrNotFoundUpstream }

// NewNotFoundUpstream builds a NotFoundUpstream for the service and id.
func NewNotFoundUpstream(service, id string) error {
	return &NotFoundUpstream{Service: service, ID: id}
}

// AlreadyExists reports a storage-layer uniqueness race on the given key.
// It is distinct from validation failures: the input was well formed.
type AlreadyExists struct {
	Key string
}

func (f *AlreadyExists) Error() string {
	return fmt.Sprintf("already exists: key %q", f.Key)
}

// Is matches ErrAlreadyExists.
func (f *AlreadyExists) Is(target error) bool { return target == ErrAlreadyExists }

// NewAlreadyExists builds an AlreadyExists for the conflicting key.
func NewAlreadyExists(key string) error {
	return &AlreadyExists{Key: key}
}

// AuthorizationDenied reports that the authenticated principal lacks the
// access the operation requires.
type AuthorizationDenied struct {
	Principal string
	Reason    string
}

func (f *AuthorizationDenied) Error() string {
	if f.Reason != "" {
		return fmt.Sprintf("authorization denied: principal %q: %s", f.Principal, f.Reason)
	}
	return fmt.Sprintf("authorization denied: principal %q", f.Principal)
}

// Is matches ErrAuthorizationDenied.
func (f *AuthorizationDenied) Is(target error) bool { return target == ErrAuthorizationDenied }

// NewAuthorizationDenied builds an AuthorizationDenied for the principal.
func NewAuthorizationDenied(principal, reason string) error {
	return &AuthorizationDenied{Principal: principal, Reason: reason}
}
