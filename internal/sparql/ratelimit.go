package sparql

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterMap holds one limiter per endpoint. Each limiter releases one request
// per interval with a burst of one, which spaces consecutive queries to the same
// endpoint by at least the interval.
type RateLimiterMap struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewRateLimiterMap creates a limiter map. A non-positive interval disables pacing.
func NewRateLimiterMap(interval time.Duration) *RateLimiterMap {
	return &RateLimiterMap{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the limiter for the endpoint allows a request, or the
// context is canceled.
func (m *RateLimiterMap) Wait(ctx context.Context, endpoint string) error {
	if m == nil || m.interval <= 0 {
		return ctx.Err()
	}
	m.mu.Lock()
	limiter, ok := m.limiters[endpoint]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(m.interval), 1)
		m.limiters[endpoint] = limiter
	}
	m.mu.Unlock()
	return limiter.Wait(ctx)
}
