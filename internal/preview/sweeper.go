package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roach88/dataver/internal/metrics"
)

// DefaultSweepSchedule runs the sweeper at the top of every hour.
const DefaultSweepSchedule = "@hourly"

// Sweeper deletes tokens that expired more than a grace period ago on a
// cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	store   Store
	grace   time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

// WithSweeperMetrics records swept tokens.
func WithSweeperMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// WithSweeperClock sets the time source.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper. schedule is a standard cron expression or
// descriptor such as "@hourly"; an invalid schedule is an error.
func NewSweeper(store Store, schedule string, grace time.Duration, opts ...SweeperOption) (*Sweeper, error) {
	s := &Sweeper{
		cron:   cron.New(),
		store:  store,
		grace:  grace,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("preview sweeper schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("preview sweeper started", "grace", s.grace)
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("preview sweeper stopped")
}

func (s *Sweeper) run() {
	if _, err := s.Sweep(context.Background()); err != nil {
		s.logger.Warn("preview sweep failed", "error", err)
	}
}

// Sweep deletes tokens that expired before now minus the grace period and
// returns how many were deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.grace)
	n, err := s.store.DeleteExpiredTokens(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep preview tokens: %w", err)
	}
	s.metrics.TokensSwept(n)
	if n > 0 {
		s.logger.Info("expired preview tokens deleted", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
