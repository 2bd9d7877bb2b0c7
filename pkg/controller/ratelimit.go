package controller

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/sonet/timeline/pkg/config"
)

// viewerLimiter rate-limits timeline reads per viewer. Limiters are
// created lazily; a zero requests-per-minute configuration disables
// limiting entirely.
type viewerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rpm      int
	burst    int
}

func newViewerLimiter(cfg config.RateLimitConfig) *viewerLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &viewerLimiter{
		limiters: make(map[string]*rate.Limiter),
		rpm:      cfg.RequestsPerMinute,
		burst:    burst,
	}
}

// Allow reports whether the viewer may issue a request right now.
func (l *viewerLimiter) Allow(viewerID string) bool {
	if l.rpm <= 0 {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[viewerID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.burst)
		l.limiters[viewerID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
