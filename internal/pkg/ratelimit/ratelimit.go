package ratelimit

import (
	"sync"
	"time"
)

// Limiter is an in-process token-bucket limiter keyed by an arbitrary
// string, typically "operation-class:client-identity". State is local to
// the process: this is per-instance protection, not a global rate
// guarantee.
type Limiter struct {
	mu       sync.Mutex
	now      func() time.Time
	buckets  map[string]*bucket
	capacity float64
	interval time.Duration // time over which an empty bucket fully refills
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Config holds limiter settings
type Config struct {
	Capacity int           // max burst
	Interval time.Duration // full-refill window
	Now      func() time.Time
}

// New creates a limiter. The Now hook exists so tests can drive a
// simulated clock.
func New(cfg Config) *Limiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Limiter{
		now:      cfg.Now,
		buckets:  make(map[string]*bucket),
		capacity: float64(cfg.Capacity),
		interval: cfg.Interval,
	}
}

// Allow reports whether one request for the given key is admitted,
// consuming one token on success. It never blocks.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastCheck: now}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastCheck)
		if elapsed > 0 {
			b.tokens += l.capacity * float64(elapsed) / float64(l.interval)
			if b.tokens > l.capacity {
				b.tokens = l.capacity
			}
			b.lastCheck = now
		}
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
