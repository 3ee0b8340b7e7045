package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTimeout indicates the upstream did not answer within the per-call timeout.
	ErrTimeout = errors.New("fetch: upstream timeout")
	// ErrRateLimited indicates the upstream rejected the call with 429.
	ErrRateLimited = errors.New("fetch: upstream rate limit exceeded")
	// ErrMalformed indicates a payload whose shape could not be interpreted.
	ErrMalformed = errors.New("fetch: malformed upstream response")
)

// Error describes a failed upstream call.
type Error struct {
	Endpoint   string
	StatusCode int
	Retryable  bool
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: http status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: http status %d: %s", e.Endpoint, e.StatusCode, truncate(e.Body, 256))
	default:
		return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// FetchFailedError is returned when a call failed with a non-retryable error.
type FetchFailedError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt: either the error
// is explicitly flagged retryable or the upstream answered with a 5xx status.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	if fe.Retryable {
		return true
	}
	return fe.StatusCode >= http.StatusInternalServerError && fe.StatusCode <= 599
}

// StatusCode extracts the upstream HTTP status carried by err, if any.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
