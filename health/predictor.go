package health

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// TrendWindow is how many recent samples a forecast is fitted on
	TrendWindow = 20
	// MinSamples is the history required before any prediction is made
	MinSamples = 10

	latencyTrendThreshold = 0.02
	errorTrendThreshold   = 0.05
	maxLatencyProbability = 0.90
	maxErrorProbability   = 0.85
)

// Risk is the overall maintenance risk level
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// WindowDays returns how many days out maintenance is recommended
func (r Risk) WindowDays() int {
	switch r {
	case RiskCritical:
		return 1
	case RiskHigh:
		return 3
	case RiskMedium:
		return 7
	default:
		return 14
	}
}

// RiskFor maps a probability to a risk level
func RiskFor(probability float64) Risk {
	switch {
	case probability >= 0.8:
		return RiskCritical
	case probability >= 0.6:
		return RiskHigh
	case probability >= 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// PredictionType names a forecast failure mode
type PredictionType string

const (
	PerformanceDegradation PredictionType = "performance_degradation"
	ErrorSpike             PredictionType = "error_spike"
)

// Sample is one recorded point of an integration's history
type Sample struct {
	At        time.Time     `json:"at"`
	Latency   time.Duration `json:"latency"`
	ErrorRate float64       `json:"error_rate"` // percent
}

// Prediction is one forecast failure mode
type Prediction struct {
	Type        PredictionType `json:"type"`
	Probability float64        `json:"probability"`
	Trend       float64        `json:"trend"`
	Description string         `json:"description"`
}

// Forecast is the maintenance outlook of one integration
type Forecast struct {
	IntegrationID   string       `json:"integration_id"`
	Risk            Risk         `json:"risk"`
	Predictions     []Prediction `json:"predictions"`
	WindowDays      int          `json:"window_days"`
	NextMaintenance time.Time    `json:"next_maintenance"`
	SampleCount     int          `json:"sample_count"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

/* Predictor fits a linear trend over the most recent samples of each
 * integration. Only the last TrendWindow samples are kept.
 */
type Predictor struct {
	mu      sync.Mutex
	history map[string][]Sample
	now     func() time.Time
}

// NewPredictor creates an empty predictor
func NewPredictor() *Predictor {
	return &Predictor{
		history: make(map[string][]Sample),
		now:     time.Now,
	}
}

// Record appends a sample to the history of id
func (p *Predictor) Record(id string, s Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.At.IsZero() {
		s.At = p.now()
	}
	h := append(p.history[id], s)
	if len(h) > TrendWindow {
		h = h[len(h)-TrendWindow:]
	}
	p.history[id] = h
}

// Predict forecasts maintenance risk for id. With fewer than MinSamples
// samples the risk is low and no predictions are made.
func (p *Predictor) Predict(id string) Forecast {
	p.mu.Lock()
	samples := make([]Sample, len(p.history[id]))
	copy(samples, p.history[id])
	p.mu.Unlock()

	now := p.now()
	f := Forecast{
		IntegrationID: id,
		Risk:          RiskLow,
		Predictions:   []Prediction{},
		SampleCount:   len(samples),
		GeneratedAt:   now,
	}

	if len(samples) >= MinSamples {
		latencies := make([]float64, len(samples))
		errorRates := make([]float64, len(samples))
		for i, s := range samples {
			latencies[i] = float64(s.Latency.Milliseconds())
			errorRates[i] = s.ErrorRate
		}

		if trend := Trend(latencies); trend > latencyTrendThreshold {
			f.Predictions = append(f.Predictions, Prediction{
				Type:        PerformanceDegradation,
				Probability: math.Min(trend*10, maxLatencyProbability),
				Trend:       trend,
				Description: fmt.Sprintf("Response time is rising %.1f%% per sample", trend*100),
			})
		}
		if trend := Trend(errorRates); trend > errorTrendThreshold {
			f.Predictions = append(f.Predictions, Prediction{
				Type:        ErrorSpike,
				Probability: math.Min(trend*5, maxErrorProbability),
				Trend:       trend,
				Description: fmt.Sprintf("Error rate is rising %.1f%% per sample", trend*100),
			})
		}

		highest := 0.0
		for _, pr := range f.Predictions {
			highest = math.Max(highest, pr.Probability)
		}
		f.Risk = RiskFor(highest)
	}

	f.WindowDays = f.Risk.WindowDays()
	f.NextMaintenance = now.AddDate(0, 0, f.WindowDays)
	return f
}

// Trend is the least squares slope of values over their index divided by
// their mean. A zero mean yields zero.
func Trend(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	mean := sumY / n
	if mean == 0 {
		return 0
	}
	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denominator
	return slope / mean
}
