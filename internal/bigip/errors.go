package bigip

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the two failure classes the engine is allowed to
// recover from. Everything else coming out of the device is opaque and fatal.
var (
	ErrNotFound      = errors.New("object was not found")
	ErrAlreadyExists = errors.New("object already exists")
)

// APIError is a failure reported by the device control API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: unexpected status code %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
}

// IsNotFound reports whether err carries the device's not-found signature.
// The device has no structured error codes worth trusting across versions,
// so classification inspects the message text.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// IsAlreadyExists reports whether err carries the device's already-exists
// signature, raised when another actor created the object between our
// existence check and the create call.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyExists) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 409 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
