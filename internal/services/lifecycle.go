package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"campushub/internal/domain"
)

// SweepLockKey is the lock taken by the replica running a lifecycle sweep.
const SweepLockKey = "campushub:lifecycle-sweep"

type lifecycleService struct {
	eventRepo domain.EventRepository
	lock      domain.SweepLock
	interval  time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewLifecycleService returns a service promoting upcoming and ongoing events by
// wall-clock time every interval. lock may be nil when only one process runs.
func NewLifecycleService(eventRepo domain.EventRepository, lock domain.SweepLock, interval time.Duration, logger *slog.Logger) domain.LifecycleService {
	return &lifecycleService{
		eventRepo: eventRepo,
		lock:      lock,
		interval:  interval,
		logger:    logger,
		tracer:    otel.Tracer("campushub/services/lifecycle"),
		now:       time.Now,
	}
}

// SweepOnce moves upcoming events that have started to ongoing, then ongoing
// events that have ended to completed. Re-running it is harmless.
func (s *lifecycleService) SweepOnce(ctx context.Context) (domain.SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.sweep")
	defer span.End()

	var result domain.SweepResult
	held := false
	if s.lock != nil {
		// Held for half an interval so one replica sweeps per tick. A successful
		// sweep keeps it until it expires; a failed one hands it back.
		ok, err := s.lock.Acquire(ctx, SweepLockKey, max(s.interval/2, time.Second))
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "sweep lock unavailable, sweeping anyway", "err", err)
		case !ok:
			span.SetAttributes(attribute.Bool("sweep.skipped", true))
			result.Skipped = true
			return result, nil
		default:
			held = true
		}
	}
	fail := func(err error) (domain.SweepResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if held {
			if rerr := s.lock.Release(context.WithoutCancel(ctx), SweepLockKey); rerr != nil {
				s.logger.WarnContext(ctx, "release sweep lock", "err", rerr)
			}
		}
		return result, err
	}

	now := s.now().UTC()
	var err error
	if result.Started, err = s.eventRepo.MarkStarted(ctx, now); err != nil {
		return fail(fmt.Errorf("mark started: %w", err))
	}
	if result.Completed, err = s.eventRepo.MarkCompleted(ctx, now); err != nil {
		return fail(fmt.Errorf("mark completed: %w", err))
	}
	span.SetAttributes(
		attribute.Int64("sweep.started", result.Started),
		attribute.Int64("sweep.completed", result.Completed),
	)
	return result, nil
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *lifecycleService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "lifecycle sweeper started", "interval", s.interval.String())
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.InfoContext(context.WithoutCancel(ctx), "lifecycle sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *lifecycleService) sweep(ctx context.Context) {
	result, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "lifecycle sweep failed", "err", err)
		return
	}
	if result.Skipped {
		s.logger.DebugContext(ctx, "lifecycle sweep skipped, another instance holds the lock")
		return
	}
	s.logger.InfoContext(ctx, "lifecycle sweep finished",
		"promoted_started", result.Started,
		"promoted_completed", result.Completed)
}
