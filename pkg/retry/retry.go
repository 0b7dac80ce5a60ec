package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"pageharvest/pkg/logger"
	"pageharvest/pkg/ratelimit"
)

// Policy bounds how often a startup step is attempted and how long to back
// off between attempts
type Policy struct {
	// Attempts is the total number of tries, at least 1
	Attempts int
	// BaseDelay is the pause after the first failure; it doubles per attempt
	BaseDelay time.Duration
	// MaxDelay caps the pause
	MaxDelay time.Duration
	// Jitter spreads each pause by up to this fraction either way
	Jitter float64
	// Retryable decides whether an error is worth another attempt
	Retryable func(error) bool
	// Sleep serves the pause; tests replace it
	Sleep ratelimit.Sleeper
}

// LaunchPolicy is the policy used for starting or connecting to a browser
func LaunchPolicy(attempts int) Policy {
	return Policy{
		Attempts:  attempts,
		BaseDelay: time.Second,
		MaxDelay:  15 * time.Second,
		Jitter:    0.1,
		Retryable: Retryable,
		Sleep:     ratelimit.Sleep,
	}
}

// Retryable reports false for cancellation and deadlines
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Delay returns the pause after the given failed attempt (1-based)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d += rand.Float64()*2*spread - spread
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Run calls op until it succeeds, returns a non-retryable error, the
// attempts are used up or ctx ends. step names the operation in logs.
func Run[T any](ctx context.Context, p Policy, log logger.Logger, step string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if log == nil {
		log = logger.NewNopLogger()
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Retryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = ratelimit.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.WithField("attempt", attempt).Info(step + " succeeded after retry")
			}
			return result, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		log.WarnWithFields(step+" failed, retrying", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": attempts,
			"delay_ms":     delay.Milliseconds(),
			"error":        err.Error(),
		})
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: retry cancelled: %w", step, err)
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", step, attempts, lastErr)
}
