package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
)

// Status is the coarse health of an integration
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// monitorWindow bounds the observations kept per integration
const monitorWindow = 100

// Observation is the outcome of one integration call
type Observation struct {
	At      time.Time
	Latency time.Duration
	Success bool
	// Unavailable marks failures where the integration could not be reached
	// at all: circuit open, timeout, network error or 5xx.
	Unavailable bool
}

// RateLimitSnapshot is the last known quota of an integration
type RateLimitSnapshot struct {
	Limits      ratelimit.Limits    `json:"limits"`
	Remaining   ratelimit.Remaining `json:"remaining"`
	Utilization float64             `json:"utilization"`
	ResetAt     time.Time           `json:"reset_at"`
}

// IntegrationHealth is a derived snapshot, recomputed on every call
type IntegrationHealth struct {
	IntegrationID       string             `json:"integration_id"`
	Status              Status             `json:"status"`
	ErrorRate           float64            `json:"error_rate"`
	AverageResponseTime time.Duration      `json:"average_response_time"`
	Uptime              float64            `json:"uptime"`
	RateLimit           *RateLimitSnapshot `json:"rate_limit,omitempty"`
	Issues              []string           `json:"issues"`
	Observations        int                `json:"observations"`
	CheckedAt           time.Time          `json:"checked_at"`
}

// Input converts the snapshot into scorer input
func (h IntegrationHealth) Input() Input {
	in := Input{
		ErrorRate:           h.ErrorRate,
		AverageResponseTime: h.AverageResponseTime,
		Uptime:              h.Uptime,
	}
	if h.RateLimit != nil {
		in.RateLimitUtilization = h.RateLimit.Utilization
	}
	return in
}

// RateLimitSource reads the current quota of an integration on demand
type RateLimitSource func() RateLimitSnapshot

type integrationSeries struct {
	observations []Observation
	rateLimit    *RateLimitSnapshot
	source       RateLimitSource
}

// Monitor aggregates call outcomes per integration
type Monitor struct {
	mu   sync.RWMutex
	data map[string]*integrationSeries
	now  func() time.Time
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{
		data: make(map[string]*integrationSeries),
		now:  time.Now,
	}
}

// Record appends an observation for id
func (m *Monitor) Record(id string, o Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.At.IsZero() {
		o.At = m.now()
	}
	s := m.series(id)
	s.observations = append(s.observations, o)
	if len(s.observations) > monitorWindow {
		s.observations = s.observations[len(s.observations)-monitorWindow:]
	}
}

// SetRateLimit replaces the quota snapshot of id
func (m *Monitor) SetRateLimit(id string, snap RateLimitSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.series(id).rateLimit = &snap
}

// SetRateLimitSource makes Health read the quota of id from fn instead of
// the last stored snapshot
func (m *Monitor) SetRateLimitSource(id string, fn RateLimitSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.series(id).source = fn
}

// Health derives the current health of id
func (m *Monitor) Health(id string) IntegrationHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := IntegrationHealth{
		IntegrationID: id,
		Status:        StatusUnknown,
		Uptime:        100,
		Issues:        []string{},
		CheckedAt:     m.now(),
	}

	s, ok := m.data[id]
	if !ok {
		return h
	}
	if s.source != nil {
		snap := s.source()
		h.RateLimit = &snap
	} else if s.rateLimit != nil {
		snap := *s.rateLimit
		h.RateLimit = &snap
	}
	if len(s.observations) == 0 {
		return h
	}

	var total time.Duration
	failures, unavailable := 0, 0
	for _, o := range s.observations {
		total += o.Latency
		if !o.Success {
			failures++
		}
		if o.Unavailable {
			unavailable++
		}
	}
	n := len(s.observations)
	h.Observations = n
	h.AverageResponseTime = total / time.Duration(n)
	h.ErrorRate = float64(failures) / float64(n) * 100
	h.Uptime = float64(n-unavailable) / float64(n) * 100

	h.Issues = issues(h)
	h.Status = classify(h)
	return h
}

// IDs lists every integration the monitor has seen
func (m *Monitor) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids
}

func (m *Monitor) series(id string) *integrationSeries {
	s, ok := m.data[id]
	if !ok {
		s = &integrationSeries{}
		m.data[id] = s
	}
	return s
}

func issues(h IntegrationHealth) []string {
	out := []string{}
	if h.ErrorRate > 5 {
		out = append(out, fmt.Sprintf("high error rate: %.1f%%", h.ErrorRate))
	}
	if h.AverageResponseTime > 500*time.Millisecond {
		out = append(out, fmt.Sprintf("slow responses: %dms average", h.AverageResponseTime.Milliseconds()))
	}
	if h.Uptime < 99 {
		out = append(out, fmt.Sprintf("reduced availability: %.1f%% uptime", h.Uptime))
	}
	if h.RateLimit != nil && h.RateLimit.Utilization > 90 {
		out = append(out, fmt.Sprintf("rate limit nearly exhausted: %.0f%% used", h.RateLimit.Utilization))
	}
	return out
}

func classify(h IntegrationHealth) Status {
	switch {
	case h.ErrorRate > 10 || h.Uptime < 95:
		return StatusUnhealthy
	case h.ErrorRate > 1 || h.Uptime < 99 || h.AverageResponseTime > 500*time.Millisecond:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
