// Package jobs runs periodic background work for the POS server.
package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/salon-pos/internal/domain/promotion"
)

// PromotionRefresher reloads every cached branch.
type PromotionRefresher interface {
	RefreshAll(ctx context.Context) error
}

// Scheduler wraps a gocron scheduler with the jobs the server needs.
type Scheduler struct {
	lg        *zap.Logger
	scheduler gocron.Scheduler
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(lg *zap.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}
	return &Scheduler{lg: lg, scheduler: s}, nil
}

// AddPromotionRefresh refreshes promotions every interval. A run still in
// progress when the next one is due is rescheduled rather than overlapped.
func (s *Scheduler) AddPromotionRefresh(ctx context.Context, r PromotionRefresher, interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.refreshPromotions, ctx, r),
		gocron.WithName("promotion-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrap(err, "create promotion refresh job")
	}
	return nil
}

func (s *Scheduler) refreshPromotions(ctx context.Context, r PromotionRefresher) {
	start := time.Now()
	err := r.RefreshAll(ctx)
	switch {
	case errors.Is(err, promotion.ErrRefreshInProgress):
		s.lg.Debug("Promotion refresh skipped, previous run active")
	case err != nil:
		s.lg.Warn("Promotion refresh incomplete", zap.Error(err), zap.Duration("took", time.Since(start)))
	default:
		s.lg.Debug("Promotions refreshed", zap.Duration("took", time.Since(start)))
	}
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return errors.Wrap(err, "shutdown scheduler")
	}
	return nil
}
