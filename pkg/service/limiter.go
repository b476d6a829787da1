package service

import (
	"sync"
	"time"
)

/*
bucket is a token bucket refilled continuously at rate tokens per second up
to capacity.
*/
type bucket struct {
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

func (b *bucket) allow(now time.Time) bool {
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now

	if b.tokens < 1.0 {
		return false
	}

	b.tokens--
	return true
}

func (b *bucket) wait() time.Duration {
	if b.tokens >= 1.0 {
		return 0
	}

	return time.Duration((1.0 - b.tokens) / b.rate * float64(time.Second))
}

/*
RateLimiter allows up to limit messages per interval for each session. A
zero limit disables it.
*/
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	interval time.Duration
	buckets  map[string]*bucket
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		interval: interval,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

/*
Allow takes a token for key. When none is left it returns false and how long
until the next one is available.
*/
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	if rl == nil || rl.limit <= 0 || rl.interval <= 0 {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]

	if !ok {
		b = &bucket{
			rate:     float64(rl.limit) / rl.interval.Seconds(),
			capacity: float64(rl.limit),
			tokens:   float64(rl.limit),
			last:     now,
		}

		rl.buckets[key] = b
	}

	if b.allow(now) {
		return true, 0
	}

	return false, b.wait()
}

// Forget drops the bucket for a closed session.
func (rl *RateLimiter) Forget(key string) {
	if rl == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.buckets, key)
}
