package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleEviction is how long a key may go unseen before its bucket is dropped.
// A bucket idle this long has refilled, so a fresh one behaves the same.
const idleEviction = 10 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*bucket
	perMin    int
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter allows perMin requests per minute per key. perMin <= 0 disables limiting.
func NewRateLimiter(perMin int) *RateLimiter {
	burst := perMin / 2
	if burst < 5 {
		burst = 5
	}
	return &RateLimiter{limiters: map[string]*bucket{}, perMin: perMin, burst: burst, now: time.Now}
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil || rl.perMin <= 0 {
		return true
	}
	rl.mu.Lock()
	now := rl.now()
	rl.sweep(now)
	b, ok := rl.limiters[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMin)), rl.burst)}
		rl.limiters[key] = b
	}
	b.seen = now
	allowed := b.lim.AllowN(now, 1)
	rl.mu.Unlock()
	return allowed
}

// sweep drops idle buckets at most once per idleEviction. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < idleEviction {
		return
	}
	rl.lastSweep = now
	for key, b := range rl.limiters {
		if now.Sub(b.seen) >= idleEviction {
			delete(rl.limiters, key)
		}
	}
}

// Limit rejects requests over the limit with 429. Authenticated requests are
// keyed by client id, anonymous ones by remote IP.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rl.perMin)))
			writeError(w, r, http.StatusTooManyRequests, "rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if id, ok := ClientIDFromContext(r.Context()); ok {
		return "client:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func retryAfterSeconds(perMin int) int {
	if perMin <= 0 || perMin >= 60 {
		return 1
	}
	return 60 / perMin
}
