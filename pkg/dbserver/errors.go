package dbserver

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common conditions.
var (
	// ErrNotFound is matched by APIError values carrying a 404.
	ErrNotFound = errors.New("dbserver: not found")

	// ErrUnreachable is returned when the server never answered the liveness check.
	ErrUnreachable = errors.New("dbserver: unreachable")
)

// APIError represents a non-200 response from the data server.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// URL is the request URL.
	URL string

	// Body is a (truncated) copy of the response body.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("dbserver: status %d from %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("dbserver: status %d from %s", e.StatusCode, e.URL)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsNotFound returns true if the resource was not found (HTTP 404).
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}
