package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/caseace-cache/internal/apierr"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdleTimeout   = 3 * time.Minute
)

// RateLimiter enforces a global and a per-client token bucket.
type RateLimiter struct {
	global  *rate.Limiter
	ipRate  rate.Limit
	ipBurst int

	mu    sync.Mutex
	perIP map[string]*ipLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing globalRate requests per second
// overall and ipRate per client IP, with the given burst sizes. Call Stop to
// end its idle-entry sweep.
func NewRateLimiter(globalRate float64, globalBurst int, ipRate float64, ipBurst int) *RateLimiter {
	rl := &RateLimiter{
		global:  rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		ipRate:  rate.Limit(ipRate),
		ipBurst: ipBurst,
		perIP:   make(map[string]*ipLimiter),
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.perIP[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
		rl.perIP[ip] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.removeIdle(time.Now().Add(-limiterIdleTimeout))
		}
	}
}

func (rl *RateLimiter) removeIdle(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.perIP {
		if l.lastSeen.Before(cutoff) {
			delete(rl.perIP, ip)
		}
	}
}

// Stop ends the sweep goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Limit returns a middleware handler that enforces rate limits.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.global.Allow() {
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitGlobal())
			return
		}
		if !rl.getLimiter(getClientIP(r)).Allow() {
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitIP())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP, preferring proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
