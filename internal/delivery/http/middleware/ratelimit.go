package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	h "campushub/internal/delivery/http/helpers"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepAfter = 1024
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per authenticated requester (or remote address when
// the request is anonymous) using a token bucket refilled perMinute times a minute.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	interval int
	logger   *slog.Logger
	now      func() time.Time
}

// NewRateLimiter returns a limiter allowing perMinute requests per key, with bursts up to perMinute.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Inf,
		logger:   logger,
		now:      time.Now,
	}
	if perMinute > 0 {
		rl.limit = rate.Limit(float64(perMinute) / 60)
		rl.burst = perMinute
		rl.interval = (60 + perMinute - 1) / perMinute
	}
	return rl
}

// Wrap returns next guarded by the limiter. It must run after RequireAuth so the
// requester is keyed by identity rather than address.
func (rl *RateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.allow(key) {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded", "key", key, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(rl.interval))
			h.WriteJSONError(w, http.StatusTooManyRequests, h.ErrCodeTooManyReqs, "too many requests, slow down")
			return
		}
		next(w, r)
	}
}

func (rl *RateLimiter) allow(key string) bool {
	if rl.limit == rate.Inf {
		return true
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= limiterSweepAfter {
			for k, e := range rl.limiters {
				if now.Sub(e.lastSeen) > limiterIdleTTL {
					delete(rl.limiters, k)
				}
			}
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientKey(r *http.Request) string {
	if requester, ok := RequesterFromContext(r.Context()); ok && requester.ID != "" {
		return "user:" + requester.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
