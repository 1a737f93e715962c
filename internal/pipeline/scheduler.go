package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/observability"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

// Publisher delivers the findings of a completed pass downstream.
type Publisher interface {
	Publish(ctx context.Context, ds domain.Dataset, log *resultlog.Log) error
}

const publishAttempts = 3

// Scheduler refreshes snapshots on a cron schedule and publishes each new
// pass.
type Scheduler struct {
	runner    *CachedRunner
	publisher Publisher
	datasets  []domain.Dataset
	spec      string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewScheduler creates a Scheduler. publisher may be nil.
func NewScheduler(runner *CachedRunner, publisher Publisher, spec string, datasets []domain.Dataset, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		runner:    runner,
		publisher: publisher,
		datasets:  datasets,
		spec:      spec,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run refreshes once immediately, then on every tick of the schedule,
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}

	s.logger.Info("scheduler started", "schedule", s.spec, "datasets", s.datasets)
	s.metrics.SchedulerActive.Set(1)
	defer s.metrics.SchedulerActive.Set(0)

	s.Tick(ctx)
	c.Start()

	<-ctx.Done()
	s.logger.Info("scheduler stopping", "reason", ctx.Err())
	<-c.Stop().Done()
	return nil
}

// Tick refreshes every dataset and publishes the results.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, ds := range s.datasets {
		if ctx.Err() != nil {
			return
		}
		log, err := s.runner.Refresh(ctx, ds)
		if err != nil {
			if errors.Is(err, domain.ErrNoObservations) {
				s.logger.Warn("nothing to check", "dataset", ds)
			} else {
				s.logger.Error("scheduled check failed", "dataset", ds, "error", err)
			}
			continue
		}
		s.publish(ctx, ds, log)
	}
}

// publish retries with exponential backoff: start at 200ms, double each
// retry, cap at 5s.
func (s *Scheduler) publish(ctx context.Context, ds domain.Dataset, log *resultlog.Log) {
	if s.publisher == nil {
		return
	}

	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err := s.publisher.Publish(ctx, ds, log)
		if err == nil {
			s.metrics.FindingsPublished.Add(float64(log.Len()))
			return
		}
		s.metrics.PublishErrors.Inc()
		s.logger.Error("publish findings failed", "dataset", ds, "attempt", attempt, "error", err)

		if attempt == publishAttempts || !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
