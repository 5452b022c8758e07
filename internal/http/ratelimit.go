package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/metrics"
)

// idleTTL is how long an unused client bucket is kept.
const idleTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

// NewRateLimiter allows perSecond requests per client with the given burst.
// perSecond <= 0 disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	r := &RateLimiter{clients: make(map[string]*clientBucket), lastSweep: time.Now()}
	r.SetLimit(perSecond, burst)
	return r
}

// SetLimit changes the rate for new and existing clients.
func (r *RateLimiter) SetLimit(perSecond float64, burst int) {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.limit = limit
	r.burst = burst
	for _, c := range r.clients {
		c.limiter.SetLimit(limit)
		c.limiter.SetBurst(burst)
	}
}

// Allow reports whether key may make a request now.
func (r *RateLimiter) Allow(key string) bool {
	now := time.Now()

	r.mu.Lock()
	if now.Sub(r.lastSweep) > time.Minute {
		r.sweep(now)
	}
	c, ok := r.clients[key]
	if !ok {
		c = &clientBucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[key] = c
	}
	c.lastSeen = now
	r.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// sweep drops idle buckets. Caller holds r.mu.
func (r *RateLimiter) sweep(now time.Time) {
	for key, c := range r.clients {
		if now.Sub(c.lastSeen) > idleTTL {
			delete(r.clients, key)
		}
	}
	r.lastSweep = now
}

// rateLimit middleware rejects clients that exceed their bucket
func (s *Server) rateLimit(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if !s.rateLimiter.Allow(ip) {
			MetricInc("http", "rate_limited")
			L_warn("http: rate limited", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many requests. Please slow down."})
			return
		}
		handler(w, r)
	}
}
