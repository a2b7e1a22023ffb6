package health

import (
	"fmt"
	"time"
)

// BucketMax is the most a single score bucket can contribute
const BucketMax = 25

// Input is the aggregate an integration is scored on
type Input struct {
	ErrorRate            float64       `json:"error_rate"` // percent
	AverageResponseTime  time.Duration `json:"average_response_time"`
	Uptime               float64       `json:"uptime"`                // percent
	RateLimitUtilization float64       `json:"rate_limit_utilization"` // percent of quota used
}

// Breakdown holds the four 0-25 buckets
type Breakdown struct {
	Performance  int `json:"performance"`
	Reliability  int `json:"reliability"`
	Availability int `json:"availability"`
	RateLimit    int `json:"rate_limit"`
}

// Score is the composite health of an integration
type Score struct {
	Score           int       `json:"score"`
	Grade           string    `json:"grade"`
	Breakdown       Breakdown `json:"breakdown"`
	Recommendations []string  `json:"recommendations"`
}

// Scorer turns aggregate metrics into a 0-100 score
type Scorer struct{}

// NewScorer creates a scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the additive score. Every bucket is floored at zero and each
// applied penalty adds one recommendation.
func (s *Scorer) Score(in Input) Score {
	var recs []string

	performance := BucketMax
	ms := in.AverageResponseTime.Milliseconds()
	switch {
	case ms > 500:
		performance -= 20
		recs = append(recs, fmt.Sprintf("Average response time is %dms, investigate slow upstream calls and add caching", ms))
	case ms > 200:
		performance -= 10
		recs = append(recs, fmt.Sprintf("Average response time is %dms, consider caching frequent reads", ms))
	}

	reliability := BucketMax
	switch {
	case in.ErrorRate > 10:
		reliability -= 20
		recs = append(recs, fmt.Sprintf("Error rate is %.1f%%, check credentials and upstream status", in.ErrorRate))
	case in.ErrorRate > 5:
		reliability -= 10
		recs = append(recs, fmt.Sprintf("Error rate is %.1f%%, review recent failures", in.ErrorRate))
	case in.ErrorRate > 1:
		reliability -= 5
		recs = append(recs, fmt.Sprintf("Error rate is %.1f%%, monitor for a rising trend", in.ErrorRate))
	}

	availability := BucketMax
	switch {
	case in.Uptime < 95:
		availability -= 20
		recs = append(recs, fmt.Sprintf("Uptime is %.1f%%, the integration is frequently unreachable", in.Uptime))
	case in.Uptime < 99:
		availability -= 10
		recs = append(recs, fmt.Sprintf("Uptime is %.1f%%, review circuit breaker trips", in.Uptime))
	case in.Uptime < 99.9:
		availability -= 5
		recs = append(recs, fmt.Sprintf("Uptime is %.2f%%, below the 99.9%% target", in.Uptime))
	}

	rateLimit := BucketMax
	switch {
	case in.RateLimitUtilization > 95:
		rateLimit -= 25
		recs = append(recs, fmt.Sprintf("Rate limit utilization is %.0f%%, requests will be throttled", in.RateLimitUtilization))
	case in.RateLimitUtilization > 90:
		rateLimit -= 15
		recs = append(recs, fmt.Sprintf("Rate limit utilization is %.0f%%, spread sync jobs over time", in.RateLimitUtilization))
	case in.RateLimitUtilization > 80:
		rateLimit -= 10
		recs = append(recs, fmt.Sprintf("Rate limit utilization is %.0f%%, consider batching requests", in.RateLimitUtilization))
	}

	b := Breakdown{
		Performance:  floor(performance),
		Reliability:  floor(reliability),
		Availability: floor(availability),
		RateLimit:    floor(rateLimit),
	}
	total := b.Performance + b.Reliability + b.Availability + b.RateLimit

	if recs == nil {
		recs = []string{}
	}
	return Score{
		Score:           total,
		Grade:           Grade(total),
		Breakdown:       b,
		Recommendations: recs,
	}
}

// Grade maps a score to its letter
func Grade(score int) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 85:
		return "B+"
	case score >= 80:
		return "B"
	case score >= 75:
		return "C+"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func floor(v int) int {
	if v < 0 {
		return 0
	}
	if v > BucketMax {
		return BucketMax
	}
	return v
}
