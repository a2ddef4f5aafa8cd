package remote

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateBudget is the number of calls allowed per endpoint per window.
	DefaultRateBudget = 60

	// DefaultRateWindow is the rolling window the budget applies to.
	DefaultRateWindow = time.Minute
)

// EndpointLimiter enforces a per-endpoint request budget. Each distinct
// target URL gets its own bucket; a call over budget is rejected
// immediately rather than queued. Safe for concurrent use.
type EndpointLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	budget   int
	window   time.Duration
}

// NewEndpointLimiter creates a limiter allowing budget calls per window
// for each endpoint. Non-positive arguments fall back to the defaults.
func NewEndpointLimiter(budget int, window time.Duration) *EndpointLimiter {
	if budget <= 0 {
		budget = DefaultRateBudget
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &EndpointLimiter{
		limiters: make(map[string]*rate.Limiter),
		budget:   budget,
		window:   window,
	}
}

// Allow reports whether a call to endpoint fits the budget right now and
// consumes one slot if it does.
func (l *EndpointLimiter) Allow(endpoint string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[endpoint]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.window/time.Duration(l.budget)), l.budget)
		l.limiters[endpoint] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
