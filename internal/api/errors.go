package api

import (
	"errors"
	"fmt"
	"net/http"

	"talkie/internal/auth"
)

var (
	// ErrUnauthorized re-exports the auth sentinel so callers get one error
	// taxonomy regardless of which entry point produced it.
	ErrUnauthorized = auth.ErrUnauthorized

	// ErrInvalidRequest marks a route that cannot be turned into a request.
	ErrInvalidRequest = errors.New("invalid request")
)

// StatusError covers any non-2xx response that is not an auth failure, and
// transport-level failures (Code 0).
type StatusError struct {
	Code int
	Body string
	Err  error
}

func (e *StatusError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// DecodeError wraps a failure to decode a response body.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// classify maps a non-2xx status to the shared error taxonomy. 401/403/418
// all become ErrUnauthorized so callers never need to tell them apart.
func classify(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTeapot:
		return ErrUnauthorized
	}
	return &StatusError{Code: status, Body: string(body)}
}
