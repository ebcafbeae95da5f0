package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow(key string) bool
}

// clientRateLimiter keeps one token bucket per client key. A full bucket holds limit tokens and
// refills across window, so a client gets a burst of limit calls and then one per window/limit.
type clientRateLimiter struct {
	every   rate.Limit
	burst   int
	idleTTL time.Duration
	clock   func() time.Time

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &clientRateLimiter{
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idleTTL: window,
		clock:   clock,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *clientRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		l.pruneIdleLocked(now)
		bucket = &clientBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// pruneIdleLocked drops buckets untouched for a full window; they would have refilled anyway.
func (l *clientRateLimiter) pruneIdleLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}
