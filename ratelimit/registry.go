package ratelimit

import "sync"

// Registry owns one limiter per key (endpoint or integration)
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	defaults Limits
	opts     []Option
}

// NewRegistry creates an empty registry; limiters created on demand use defaults
func NewRegistry(defaults Limits, opts ...Option) *Registry {
	return &Registry{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
		opts:     opts,
	}
}

// Set installs a limiter for key with the given caps, replacing any existing one
func (r *Registry) Set(key string, limits Limits) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := New(limits, r.opts...)
	r.limiters[key] = l
	return l
}

// For returns the limiter for key, creating one with the defaults if needed
func (r *Registry) For(key string) *Limiter {
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.limiters[key]; ok {
		return l
	}
	l = New(r.defaults, r.opts...)
	r.limiters[key] = l
	return l
}

// Remove drops the limiter for key
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, key)
}

// Ensure returns the limiter for key, replacing it only when its caps differ
// from limits so that request history survives repeated lookups
func (r *Registry) Ensure(key string, limits Limits) *Limiter {
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok && l.Limits() == limits {
		return l
	}
	return r.Set(key, limits)
}
