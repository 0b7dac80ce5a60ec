package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or ctx ends
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// Sleeper pauses for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Jitter draws a uniformly random politeness delay in [min, max]
type Jitter struct {
	min   time.Duration
	max   time.Duration
	rng   *rand.Rand
	sleep Sleeper
	mu    sync.Mutex
}

// NewJitter creates a politeness delay source. Bounds are swapped if
// given in the wrong order.
func NewJitter(min, max time.Duration) *Jitter {
	if max < min {
		min, max = max, min
	}
	return &Jitter{
		min:   min,
		max:   max,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: Sleep,
	}
}

// WithSleeper replaces how the delay is served, for tests
func (j *Jitter) WithSleeper(s Sleeper) *Jitter {
	j.sleep = s
	return j
}

// WithSeed makes the delay sequence deterministic
func (j *Jitter) WithSeed(seed int64) *Jitter {
	j.rng = rand.New(rand.NewSource(seed))
	return j
}

// Bounds returns the configured range
func (j *Jitter) Bounds() (time.Duration, time.Duration) {
	return j.min, j.max
}

// Next draws the next delay
func (j *Jitter) Next() time.Duration {
	if j.max == j.min {
		return j.min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.min + time.Duration(j.rng.Int63n(int64(j.max-j.min)+1))
}

// Sleep serves an already drawn delay
func (j *Jitter) Sleep(ctx context.Context, d time.Duration) error {
	return j.sleep(ctx, d)
}

// SlidingWindow implements a sliding window rate limiter
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	sleep       Sleeper
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
		sleep:       Sleep,
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}

	return false
}

// Wait blocks until a request is allowed
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		timeToWait := 100 * time.Millisecond
		if len(sw.requests) > 0 {
			if d := sw.windowSize - time.Since(sw.requests[0]); d > 0 {
				timeToWait = d
			}
		}
		sw.mu.Unlock()

		if err := sw.sleep(ctx, timeToWait); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && sw.requests[i].Before(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}

// PerHour returns a sliding window of n page loads per hour, or Unlimited
// when n is not positive
func PerHour(n int) Limiter {
	if n <= 0 {
		return Unlimited{}
	}
	return NewSlidingWindow(n, time.Hour)
}
