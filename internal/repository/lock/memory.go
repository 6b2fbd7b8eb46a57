package lock

import (
	"context"
	"sync"
	"time"

	"campushub/internal/domain"
)

type memoryLock struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryLock returns a SweepLock that only coordinates goroutines of this process.
func NewMemoryLock() domain.SweepLock {
	return &memoryLock{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (l *memoryLock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.expires[key] = now.Add(ttl)
	return true, nil
}

func (l *memoryLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, key)
	return nil
}
