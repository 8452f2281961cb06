package gateways

import (
	"errors"
	"fmt"
)

// NotFoundError reports a resource missing at an external collaborator.
type NotFoundError struct {
	Resource string
	Key      string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// IsNotFound marks the error as a missing-resource failure.
func (e *NotFoundError) IsNotFound() bool { return true }

// IsUnavailable reports false; the collaborator answered.
func (e *NotFoundError) IsUnavailable() bool { return false }

// UnavailableError reports a collaborator that could not be reached or
// answered with a server-side failure.
type UnavailableError struct {
	Gateway string
	Err     error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Gateway)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Gateway, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *UnavailableError) Unwrap() error { return e.Err }

// IsNotFound reports false; the resource state is unknown.
func (e *UnavailableError) IsNotFound() bool { return false }

// IsUnavailable marks the error as a reachability failure.
func (e *UnavailableError) IsUnavailable() bool { return true }

// IsNotFound reports whether err carries gateway not-found categorisation.
func IsNotFound(err error) bool {
	var gwErr GatewayError
	return errors.As(err, &gwErr) && gwErr.IsNotFound()
}

// IsUnavailable reports whether err carries gateway unavailable categorisation.
func IsUnavailable(err error) bool {
	var gwErr GatewayError
	return errors.As(err, &gwErr) && gwErr.IsUnavailable()
}
