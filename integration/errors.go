package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/resilience"
)

// ErrNotFound is returned for an integration id that was never registered
var ErrNotFound = errors.New("integration not found")

// ErrRateLimited marks a call abandoned while waiting for local rate budget.
// The platform was never contacted, so it is neither a failure nor retried.
var ErrRateLimited = errors.New("rate limit budget not available")

// OperationError carries the context of a failed adapter operation
type OperationError struct {
	IntegrationID string
	Platform      Platform
	Operation     string
	At            time.Time
	Err           error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s (%s) failed at %s: %v",
		e.Platform, e.Operation, e.IntegrationID, e.At.Format(time.RFC3339), e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the underlying failure was transient
func (e *OperationError) Retryable() bool {
	if errors.Is(e.Err, ErrRateLimited) {
		return false
	}
	return resilience.IsRetryable(e.Err)
}

// unavailable reports failures where the platform could not be reached at all
func unavailable(err error) bool {
	if err == nil || errors.Is(err, ErrRateLimited) {
		return false
	}
	if errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, resilience.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if resilience.StatusCode(err) >= 500 {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
