package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultSweepInterval = 10 * time.Second
	DefaultSweepBatch    = 500
	// DefaultSweepRate bounds re-drives per second so a backlog does not stampede
	DefaultSweepRate = 50
)

// SweeperConfig tunes the background re-drive loop
type SweeperConfig struct {
	Interval time.Duration
	Batch    int
	Rate     float64
}

// Redriver re-queues a due delivery, reporting whether it did
type Redriver interface {
	Redrive(d Delivery) bool
}

/* Sweeper periodically re-drives deliveries whose NextRetryAt has passed
 * It is a safety net for the scheduler, covering lost timers and deliveries
 * persisted by a previous process
 */
type Sweeper struct {
	id       string
	repo     Repository
	redriver Redriver
	cfg      SweeperConfig
	limiter  *rate.Limiter
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper with a unique id for its heartbeat
func NewSweeper(repo Repository, redriver Redriver, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultSweepBatch
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultSweepRate
	}

	id := uuid.New().String()
	return &Sweeper{
		id:       id,
		repo:     repo,
		redriver: redriver,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), int(cfg.Rate)+1),
		logger:   logger.With().Str("sweeper_id", id).Logger(),
		now:      time.Now,
	}
}

// ID returns the heartbeat identity of the sweeper
func (s *Sweeper) ID() string {
	return s.id
}

// Run sweeps every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("sweeper started")
	defer func() {
		// use a fresh context, ctx is already cancelled here
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.repo.RemoveHeartbeat(cleanupCtx, s.id); err != nil {
			s.logger.Warn().Err(err).Msg("removing heartbeat")
		}
		s.logger.Info().Msg("sweeper stopped")
	}()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("sweeping deliveries")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep re-drives every due delivery once and returns how many were queued.
// An empty queue is not an error.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	if err := s.repo.Heartbeat(ctx, SweeperInfo{SweeperID: s.id, Status: "sweeping", LastHeartbeat: now}); err != nil {
		s.logger.Warn().Err(err).Msg("sending heartbeat")
	}

	due, err := s.repo.DueDeliveries(ctx, now, s.cfg.Batch)
	if err != nil {
		return 0, fmt.Errorf("listing due deliveries: %w", err)
	}

	redriven := 0
	for _, d := range due {
		if !d.Due(now) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return redriven, nil
		}
		if s.redriver.Redrive(d) {
			redriven++
		}
	}

	if redriven > 0 {
		s.logger.Info().Int("due", len(due)).Int("redriven", redriven).Msg("sweep re-drove deliveries")
	}

	if err := s.repo.Heartbeat(ctx, SweeperInfo{SweeperID: s.id, Status: "idle", LastHeartbeat: s.now()}); err != nil {
		s.logger.Warn().Err(err).Msg("sending heartbeat")
	}
	return redriven, nil
}
