package providers

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"crawlerd/internal/structures"
)

type RateLimiterInterface interface {
	Allow(key string) bool
	Prune(idle time.Duration) int
	Len() int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per API key hash.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
	now     func() time.Time
}

func NewRateLimiter(conf *structures.Config, logger Logger) RateLimiterInterface {
	if conf.Ingest.RateLimit <= 0 {
		logger.Infof(TypeApp, "Ingest rate limiting disabled")
		return &noopLimiter{}
	}
	burst := conf.Ingest.RateBurst
	if burst <= 0 {
		burst = max(int(conf.Ingest.RateLimit), 1)
	}
	logger.Infof(TypeApp, "Ingest rate limit: %.2f req/s per key, burst %d", conf.Ingest.RateLimit, burst)

	return &RateLimiter{
		limit:   rate.Limit(conf.Ingest.RateLimit),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Prune drops limiters unused for longer than idle and returns how many remain.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	for key, e := range rl.entries {
		if e.lastSeen.Before(cutoff) {
			delete(rl.entries, key)
		}
	}
	return len(rl.entries)
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

type noopLimiter struct{}

func (n *noopLimiter) Allow(_ string) bool       { return true }
func (n *noopLimiter) Prune(_ time.Duration) int { return 0 }
func (n *noopLimiter) Len() int                  { return 0 }
