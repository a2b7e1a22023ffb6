package performance

import "time"

// MaxSamples bounds every per-key metric series
const MaxSamples = 100

// Sample is one recorded operation outcome
type Sample struct {
	At       time.Time     `json:"at"`
	Latency  time.Duration `json:"latency"`
	Success  bool          `json:"success"`
	CacheHit bool          `json:"cache_hit,omitempty"`
	Cached   bool          `json:"cached,omitempty"` // sample came through the cache path
}

// Stats is derived from the samples currently held for a key
type Stats struct {
	Count       int           `json:"count"`
	Average     time.Duration `json:"average"`
	Min         time.Duration `json:"min"`
	Max         time.Duration `json:"max"`
	Errors      int           `json:"errors"`
	ErrorRate   float64       `json:"error_rate"` // percent
	CacheHits   int           `json:"cache_hits"`
	CacheMisses int           `json:"cache_misses"`
	LastAt      time.Time     `json:"last_at"`
}

// ring keeps the most recent MaxSamples samples
type ring struct {
	samples [MaxSamples]Sample
	next    int
	size    int
}

func (r *ring) add(s Sample) {
	r.samples[r.next] = s
	r.next = (r.next + 1) % MaxSamples
	if r.size < MaxSamples {
		r.size++
	}
}

// ordered returns the samples oldest first
func (r *ring) ordered() []Sample {
	out := make([]Sample, 0, r.size)
	start := (r.next - r.size + MaxSamples) % MaxSamples
	for i := 0; i < r.size; i++ {
		out = append(out, r.samples[(start+i)%MaxSamples])
	}
	return out
}

func (r *ring) stats() Stats {
	return summarize(r.ordered())
}

func summarize(samples []Sample) Stats {
	var st Stats
	if len(samples) == 0 {
		return st
	}

	var total time.Duration
	st.Min = samples[0].Latency
	for _, s := range samples {
		st.Count++
		total += s.Latency
		if s.Latency < st.Min {
			st.Min = s.Latency
		}
		if s.Latency > st.Max {
			st.Max = s.Latency
		}
		if !s.Success {
			st.Errors++
		}
		if s.Cached {
			if s.CacheHit {
				st.CacheHits++
			} else {
				st.CacheMisses++
			}
		}
		if s.At.After(st.LastAt) {
			st.LastAt = s.At
		}
	}
	st.Average = total / time.Duration(st.Count)
	st.ErrorRate = float64(st.Errors) / float64(st.Count) * 100
	return st
}
