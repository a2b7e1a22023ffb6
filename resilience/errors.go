package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrCircuitOpen is returned without invoking the operation while a breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTimeout marks an operation whose deadline elapsed before it returned.
// The outcome is unknown: the operation may still have taken effect upstream.
var ErrTimeout = errors.New("operation timed out")

// HTTPError carries the status code of a failed upstream response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// RetryableError marks an error as transient regardless of its type
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string {
	return e.Err.Error()
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err so the default retry condition retries it
func NewRetryableError(err error) RetryableError {
	return RetryableError{Err: err}
}

type httpStatuser interface {
	HTTPStatus() int
}

// StatusCode extracts an HTTP status from err, or 0 when it carries none
func StatusCode(err error) int {
	var s httpStatuser
	if errors.As(err, &s) {
		return s.HTTPStatus()
	}
	return 0
}

// IsRetryable is the default retry condition: HTTP 5xx, HTTP 429, timeouts,
// network errors and explicitly retryable errors. A circuit-open error and
// context cancellation are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return true
	}

	if code := StatusCode(err); code != 0 {
		return code >= 500 || code == http.StatusTooManyRequests
	}

	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
