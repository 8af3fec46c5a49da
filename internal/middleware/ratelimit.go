package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// RejectHook observes throttled requests.
type RejectHook func(scope string)

// RateLimiter throttles verification traffic. Buckets are keyed by route scope
// and caller.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	idle     time.Duration
	onReject RejectHook
	now      func() time.Time

	mu        sync.Mutex
	buckets   map[bucketKey]*bucket
	lastSweep time.Time
}

type bucketKey struct {
	scope string
	key   string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Option customises a RateLimiter.
type Option func(*RateLimiter)

// WithRejectHook reports every rejection to fn.
func WithRejectHook(fn RejectHook) Option {
	return func(r *RateLimiter) { r.onReject = fn }
}

// WithIdleTimeout sets how long an unused bucket is retained.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *RateLimiter) {
		if d > 0 {
			r.idle = d
		}
	}
}

// NewRateLimiter builds a limiter allowing requestsPerMinute per key with a
// burst of a tenth of that. It returns nil, a pass-through, when the budget is
// not positive.
func NewRateLimiter(requestsPerMinute int, opts ...Option) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	r := &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		idle:    5 * time.Minute,
		now:     time.Now,
		buckets: make(map[bucketKey]*bucket),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler throttles by client IP.
func (r *RateLimiter) Handler(scope string) gin.HandlerFunc {
	return r.HandlerBy(scope, func(c *gin.Context) string { return c.ClientIP() })
}

// HandlerBy throttles by the key keyFn returns. An empty key falls back to the
// client IP.
func (r *RateLimiter) HandlerBy(scope string, keyFn KeyFunc) gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = c.ClientIP()
		}
		reservation := r.limiterFor(scope, key).Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			if r.onReject != nil {
				r.onReject(scope)
			}
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many verification attempts. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// Len reports how many buckets are live.
func (r *RateLimiter) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

func (r *RateLimiter) limiterFor(scope, key string) *rate.Limiter {
	now := r.now()
	id := bucketKey{scope: scope, key: key}

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= r.idle {
		r.sweepLocked(now)
	}
	if b, ok := r.buckets[id]; ok {
		b.lastSeen = now
		return b.limiter
	}
	b := &bucket{limiter: rate.NewLimiter(r.limit, r.burst), lastSeen: now}
	r.buckets[id] = b
	return b.limiter
}

func (r *RateLimiter) sweepLocked(now time.Time) {
	for id, b := range r.buckets {
		if now.Sub(b.lastSeen) > r.idle {
			delete(r.buckets, id)
		}
	}
	r.lastSweep = now
}
