package domain

import (
	"context"
	"time"
)

// SweepLock guards a job so that only one process runs it per interval.
type SweepLock interface {
	// Acquire takes key for ttl and reports whether this caller now holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops key early if this caller still holds it.
	Release(ctx context.Context, key string) error
}

// SweepResult counts the events promoted by one lifecycle sweep.
type SweepResult struct {
	Started   int64
	Completed int64
	Skipped   bool
}

// LifecycleService advances event status by wall-clock time.
type LifecycleService interface {
	SweepOnce(ctx context.Context) (SweepResult, error)
	Run(ctx context.Context)
}
