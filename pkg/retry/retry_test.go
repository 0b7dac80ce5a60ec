package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pageharvest/pkg/logger"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testPolicy(attempts int, sleeps *recordedSleeps) Policy {
	p := LaunchPolicy(attempts)
	p.Jitter = 0
	p.Sleep = sleeps.sleep
	return p
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicyDelayJitterBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.3}
	for i := 0; i < 100; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func TestRunSucceedsAfterRetries(t *testing.T) {
	sleeps := &recordedSleeps{}
	calls := 0
	got, err := Run(context.Background(), testPolicy(3, sleeps), logger.NewNopLogger(), "browser launch",
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("chrome exited")
			}
			return "ws://127.0.0.1:9222", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)
}

func TestRunGivesUp(t *testing.T) {
	sleeps := &recordedSleeps{}
	cause := errors.New("no chrome")
	calls := 0
	_, err := Run(context.Background(), testPolicy(2, sleeps), nil, "browser launch",
		func(ctx context.Context) (int, error) {
			calls++
			return 0, cause
		})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, calls)
	assert.Len(t, sleeps.delays, 1, "no pause after the final attempt")
}

func TestRunDoesNotRetryCancellation(t *testing.T) {
	calls := 0
	_, err := Run(context.Background(), testPolicy(5, &recordedSleeps{}), nil, "connect",
		func(ctx context.Context) (int, error) {
			calls++
			return 0, context.Canceled
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Run(ctx, testPolicy(5, &recordedSleeps{}), nil, "connect",
		func(ctx context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("flaky")
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRunLogsRetries(t *testing.T) {
	log := logger.NewTestLogger()
	calls := 0
	_, err := Run(context.Background(), testPolicy(2, &recordedSleeps{}), log, "browser launch",
		func(ctx context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, errors.New("port busy")
			}
			return 1, nil
		})

	require.NoError(t, err)
	assert.True(t, log.HasMessage("browser launch failed, retrying"))
	assert.True(t, log.HasMessage("browser launch succeeded after retry"))
}
