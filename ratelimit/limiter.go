package ratelimit

import (
	"sync"
	"time"
)

/* Limiter is a sliding-window request budget with minute, hour and day tiers
 * It is a hard gate: callers check CanMakeRequest and back off on false
 */

const (
	Minute = time.Minute
	Hour   = time.Hour
	Day    = 24 * time.Hour
)

// Limits holds the caps for each window. A zero cap disables that tier.
type Limits struct {
	PerMinute int `yaml:"per_minute" json:"per_minute"`
	PerHour   int `yaml:"per_hour" json:"per_hour"`
	PerDay    int `yaml:"per_day" json:"per_day"`
}

// DefaultLimits is the conservative budget used when an endpoint declares none
var DefaultLimits = Limits{PerMinute: 60, PerHour: 1000, PerDay: 10000}

// Remaining reports how many requests each tier still admits
type Remaining struct {
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}

type Limiter struct {
	mu     sync.Mutex
	limits Limits
	log    []time.Time
	now    func() time.Time

	// live upstream quota, authoritative while known
	liveRemaining int
	liveReset     time.Time
	liveKnown     bool
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter with the given caps
func New(limits Limits, opts ...Option) *Limiter {
	l := &Limiter{
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limits returns the configured caps
func (l *Limiter) Limits() Limits {
	return l.limits
}

// CanMakeRequest reports whether all tiers are below their caps.
// It only prunes the log; a failed check records nothing.
func (l *Limiter) CanMakeRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if l.liveKnown && l.liveRemaining <= 0 && now.Before(l.liveReset) {
		return false
	}

	minute, hour, day := l.counts(now)
	return below(minute, l.limits.PerMinute) &&
		below(hour, l.limits.PerHour) &&
		below(day, l.limits.PerDay)
}

// RecordRequest appends a request at the current time
func (l *Limiter) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.log = append(l.log, now)
	if l.liveKnown && l.liveRemaining > 0 {
		l.liveRemaining--
	}
}

// Remaining returns the number of requests each tier still admits
func (l *Limiter) Remaining() Remaining {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	minute, hour, day := l.counts(now)

	r := Remaining{
		Minute: remaining(minute, l.limits.PerMinute),
		Hour:   remaining(hour, l.limits.PerHour),
		Day:    remaining(day, l.limits.PerDay),
	}
	if l.liveKnown && now.Before(l.liveReset) && l.liveRemaining < r.Minute {
		r.Minute = l.liveRemaining
	}
	return r
}

// Utilization returns the highest used fraction across tiers, in percent
func (l *Limiter) Utilization() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	minute, hour, day := l.counts(now)

	var highest float64
	for _, pair := range [][2]int{
		{minute, l.limits.PerMinute},
		{hour, l.limits.PerHour},
		{day, l.limits.PerDay},
	} {
		if pair[1] <= 0 {
			continue
		}
		if u := float64(pair[0]) / float64(pair[1]) * 100; u > highest {
			highest = u
		}
	}
	return highest
}

// ResetAt returns the earliest time at which CanMakeRequest may become true.
// It returns now when a request is currently admitted.
func (l *Limiter) ResetAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	at := now

	if l.liveKnown && l.liveRemaining <= 0 && l.liveReset.After(at) {
		at = l.liveReset
	}

	for _, tier := range []struct {
		cap    int
		window time.Duration
	}{
		{l.limits.PerMinute, Minute},
		{l.limits.PerHour, Hour},
		{l.limits.PerDay, Day},
	} {
		if tier.cap <= 0 {
			continue
		}
		inWindow := l.since(now.Add(-tier.window))
		if len(inWindow) < tier.cap {
			continue
		}
		// the window admits one more once the oldest excess entry ages out
		oldest := inWindow[len(inWindow)-tier.cap]
		if free := oldest.Add(tier.window); free.After(at) {
			at = free
		}
	}
	return at
}

// Observe records the live quota reported by the upstream
func (l *Limiter) Observe(remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.liveRemaining = remaining
	l.liveReset = resetAt
	l.liveKnown = true
}

// prune drops entries older than the longest window
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-Day)
	i := 0
	for i < len(l.log) && !l.log[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.log = append(l.log[:0], l.log[i:]...)
	}
	if l.liveKnown && !now.Before(l.liveReset) {
		l.liveKnown = false
	}
}

func (l *Limiter) counts(now time.Time) (minute, hour, day int) {
	minute = len(l.since(now.Add(-Minute)))
	hour = len(l.since(now.Add(-Hour)))
	day = len(l.log)
	return minute, hour, day
}

// since returns the suffix of the log strictly after t
func (l *Limiter) since(t time.Time) []time.Time {
	lo, hi := 0, len(l.log)
	for lo < hi {
		mid := (lo + hi) / 2
		if l.log[mid].After(t) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return l.log[lo:]
}

func below(count, limit int) bool {
	return limit <= 0 || count < limit
}

func remaining(count, limit int) int {
	if limit <= 0 {
		return -1
	}
	if count >= limit {
		return 0
	}
	return limit - count
}
