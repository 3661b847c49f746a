package fallback

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized is returned when the API rejects the configured key.
	ErrUnauthorized = errors.New("fallback api: unauthorized")
	// ErrNoResults is returned when every strategy ran without finding contacts.
	ErrNoResults = errors.New("fallback api: no results")
)

// APIError is a non-2xx response from the enrichment API.
type APIError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fallback api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("fallback api: status %d: %s", e.StatusCode, e.Body)
}

// TransientError wraps a failure that may succeed on retry: network errors,
// timeouts and unreadable success bodies.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "fallback api: transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
