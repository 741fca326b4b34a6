package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit wraps a handler with a per-client token bucket keyed on the
// remote address. Exhausted buckets answer 429.
func RateLimit(next http.Handler, rps float64, burst int) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	limiters := &clientLimiters{
		limit: rate.Limit(rps),
		burst: burst,
		seen:  make(map[string]*clientLimiter),
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !limiters.get(host).Allow() {
			writeError(w, http.StatusTooManyRequests, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errTooManyRequests = &rateError{}

type rateError struct{}

func (*rateError) Error() string { return "rate limit exceeded" }

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type clientLimiters struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	seen  map[string]*clientLimiter
}

func (c *clientLimiters) get(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.seen[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.seen[key] = entry
	}
	entry.lastSeen = now

	// Opportunistic cleanup of idle clients.
	if len(c.seen) > 1024 {
		for k, v := range c.seen {
			if now.Sub(v.lastSeen) > 10*time.Minute {
				delete(c.seen, k)
			}
		}
	}
	return entry.limiter
}
