// Package queries implements the request/response side of the server
// protocol: snapshot and window queries against the query service.
package queries

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is a query miss, surfaced to the caller as absence.
	ErrNotFound = errors.New("queries: not found")

	// ErrUnauthorized means the attached token was rejected; the caller
	// escalates to a token refresh.
	ErrUnauthorized = errors.New("queries: unauthorized")

	// ErrExpired means the session backing the token is gone.
	ErrExpired = errors.New("queries: session expired")

	// ErrTransport wraps connection-level failures.
	ErrTransport = errors.New("queries: transport failure")
)

// classifyStatus maps a response status to the error taxonomy. 2xx maps
// to nil.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusGone:
		return ErrExpired
	default:
		return fmt.Errorf("%w: status %d", ErrTransport, status)
	}
}
