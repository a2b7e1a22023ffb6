package webhook

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts      = 5
	DefaultFailureThreshold = 10
	DefaultTimeout          = 30 * time.Second
	// DefaultClaimTTL outlives one attempt at DefaultTimeout
	DefaultClaimTTL = DefaultTimeout + 30*time.Second
)

// DefaultSchedule is the wait after each failed attempt, indexed by attempt number
var DefaultSchedule = []time.Duration{
	time.Second,
	5 * time.Second,
	30 * time.Second,
	5 * time.Minute,
	time.Hour,
}

/* RetryPolicy is a fixed escalating schedule, not exponential backoff
 * The wait after attempt N is Schedule[N-1], clamped to the last entry
 */
type RetryPolicy struct {
	Schedule    []time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy allows five attempts on the default schedule
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Schedule:    DefaultSchedule,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Delay returns how long to wait after attempt number n failed
func (p RetryPolicy) Delay(n int) time.Duration {
	schedule := p.Schedule
	if len(schedule) == 0 {
		schedule = DefaultSchedule
	}
	if n < 1 {
		n = 1
	}
	if n > len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[n-1]
}

// Exhausted reports whether no attempt may follow attempt number n
func (p RetryPolicy) Exhausted(n int) bool {
	max := p.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return n >= max
}

// ParseSchedule parses a comma separated list of durations such as "1s,5s,30s,5m,1h"
func ParseSchedule(s string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("parsing retry delay %q: %w", part, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("retry delay cannot be negative: %s", part)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("retry schedule is empty")
	}
	return out, nil
}
