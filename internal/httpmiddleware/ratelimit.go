package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// maxTrackedIPs caps the limiter's per-IP state. Campuses run a bounded set
// of cameras and staff clients, so eviction past this point only ever sheds
// scanners and long-gone addresses.
const maxTrackedIPs = 4096

// RateLimiter throttles requests per client IP. Cameras post a burst of
// detections when a lesson starts, so the burst capacity is separate from
// the sustained per-minute refill.
type RateLimiter struct {
	burst     int
	perMinute int
	mu        sync.Mutex
	state     map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewRateLimiter creates a limiter allowing burst immediate requests per IP
// and refilling perMinute tokens each minute.
func NewRateLimiter(burst, perMinute int) *RateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &RateLimiter{
		burst:     burst,
		perMinute: perMinute,
		state:     make(map[string]*bucket),
	}
}

// GinMiddleware rejects over-limit requests with 429.
func (l *RateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.state[key]
	if !ok {
		if len(l.state) >= maxTrackedIPs {
			l.evictIdle(now)
		}
		l.state[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	refill := int(now.Sub(b.last).Minutes() * float64(l.perMinute))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// evictIdle drops buckets idle long enough to have fully refilled anyway.
func (l *RateLimiter) evictIdle(now time.Time) {
	for key, b := range l.state {
		if now.Sub(b.last) > time.Minute {
			delete(l.state, key)
		}
	}
}
