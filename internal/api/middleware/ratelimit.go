package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimiter is a per-remote-address token bucket guarding the HTTP
// surface itself — distinct from instructions.ThrottledDispatcher, which
// throttles per registered instruction source rather than per caller IP.
type IPRateLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
}

// NewIPRateLimiter builds a limiter allocating a bucket lazily per
// address on first sight.
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	l := &IPRateLimiter{rps: rate.Limit(rps), burst: burst}
	go l.cleanupLoop()
	return l
}

func (l *IPRateLimiter) get(addr string) *rate.Limiter {
	if v, ok := l.limiters.Load(addr); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.rps, l.burst)
	l.limiters.Store(addr, limiter)
	return limiter
}

func (l *IPRateLimiter) cleanupLoop() {
	for range time.Tick(10 * time.Minute) {
		l.limiters.Range(func(key, _ any) bool {
			l.limiters.Delete(key)
			return true
		})
	}
}

// Middleware rejects requests from an address that has exceeded its
// bucket with 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.get(r.RemoteAddr).Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
