package guard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IdleTTL is how long a client IP may stay silent before its bucket is
// dropped.
const IdleTTL = 10 * time.Minute

// Limiter keeps one token bucket per client IP. A nil *Limiter allows
// everything.
type Limiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter returns nil when perSecond is not positive. A non-positive
// burst defaults to one second worth of requests.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = max(int(perSecond), 1)
	}
	return &Limiter{
		limit:     rate.Limit(perSecond),
		burst:     burst,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// Allow reports whether ip may make one more request now.
func (l *Limiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	if now.Sub(l.lastSweep) > IdleTTL {
		l.sweep(now)
	}
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweep drops idle buckets. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > IdleTTL {
			delete(l.buckets, ip)
		}
	}
	l.lastSweep = now
}

// Size returns the number of tracked IPs.
func (l *Limiter) Size() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
