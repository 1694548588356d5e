// Package apperrors defines the relay's error taxonomy and its HTTP mapping.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// These sentinel errors are checked with errors.Is after wrapping.
var (
	// ErrValidation indicates missing or malformed request fields.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrUpstream indicates a store, telephony or reply-generation call failed.
	ErrUpstream = errors.New("upstream call failed")
	// ErrNotConfigured indicates a required collaborator was not configured at startup.
	ErrNotConfigured = errors.New("service not configured")
	// ErrDuplicate indicates a uniqueness constraint rejected an insert.
	ErrDuplicate = errors.New("duplicate resource")
	// ErrTenantUnresolved indicates no tenant could be derived for a new lead.
	ErrTenantUnresolved = errors.New("unable to determine tenant for new lead")
	// ErrEmptyReply indicates the reply-generation backend returned no text.
	ErrEmptyReply = errors.New("no reply from assistant")
)

// Validation returns a validation error carrying a client-facing message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns a not-found error for the named resource.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Upstream wraps err as an upstream failure of the named operation.
// Errors that already carry a taxonomy class are returned with context only.
func Upstream(err error, op string) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &UpstreamError{Op: op, Err: err}
}

// UpstreamError records which collaborator operation failed.
type UpstreamError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrUpstream) match every UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// NotConfigured reports the missing configuration names.
func NotConfigured(missing ...string) error {
	if len(missing) == 0 {
		return ErrNotConfigured
	}
	return fmt.Errorf("%w: missing %v", ErrNotConfigured, missing)
}

// Classified reports whether err already belongs to a taxonomy class.
func Classified(err error) bool {
	for _, target := range []error{ErrValidation, ErrNotFound, ErrUpstream, ErrNotConfigured, ErrDuplicate, ErrTenantUnresolved, ErrEmptyReply} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// HTTPStatus maps an error to the status code returned at the handler boundary.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrTenantUnresolved):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// IsValidation checks if the error is or wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound checks if the error is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDuplicate checks if the error is or wraps ErrDuplicate.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

// IsNotConfigured checks if the error is or wraps ErrNotConfigured.
func IsNotConfigured(err error) bool { return errors.Is(err, ErrNotConfigured) }
