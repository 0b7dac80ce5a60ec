package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJitterWithinBounds(t *testing.T) {
	j := NewJitter(2*time.Second, 5*time.Second).WithSeed(42)

	for i := 0; i < 1000; i++ {
		d := j.Next()
		if d < 2*time.Second || d > 5*time.Second {
			t.Fatalf("delay %v outside [2s, 5s]", d)
		}
	}
}

func TestJitterSpreads(t *testing.T) {
	j := NewJitter(0, time.Second).WithSeed(7)

	seen := map[time.Duration]bool{}
	for i := 0; i < 50; i++ {
		seen[j.Next()] = true
	}
	if len(seen) < 10 {
		t.Errorf("expected varied delays, got %d distinct values", len(seen))
	}
}

func TestJitterFixedAndSwapped(t *testing.T) {
	if d := NewJitter(time.Second, time.Second).Next(); d != time.Second {
		t.Errorf("fixed jitter = %v, want 1s", d)
	}

	min, max := NewJitter(5*time.Second, 2*time.Second).Bounds()
	if min != 2*time.Second || max != 5*time.Second {
		t.Errorf("bounds = %v..%v, want 2s..5s", min, max)
	}
}

func TestJitterSleepUsesSleeper(t *testing.T) {
	var slept []time.Duration
	j := NewJitter(time.Second, 2*time.Second).WithSleeper(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	d := j.Next()
	if err := j.Sleep(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 || slept[0] != d {
		t.Errorf("sleeper got %v, want [%v]", slept, d)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on cancellation")
	}

	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(3, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !sw.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	if sw.Allow() {
		t.Error("Expected request to be denied when limit is reached")
	}

	time.Sleep(250 * time.Millisecond)
	if !sw.Allow() {
		t.Error("Expected request to be allowed after window slides")
	}

	sw.Reset()
	if len(sw.requests) != 0 {
		t.Error("Expected requests to be cleared after reset")
	}
}

func TestSlidingWindowWaitCancelled(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	sw.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := sw.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestPerHour(t *testing.T) {
	if _, ok := PerHour(0).(Unlimited); !ok {
		t.Error("PerHour(0) should be unlimited")
	}
	if _, ok := PerHour(60).(*SlidingWindow); !ok {
		t.Error("PerHour(60) should be a sliding window")
	}
	if err := PerHour(0).Wait(context.Background()); err != nil {
		t.Errorf("unlimited wait: %v", err)
	}
}
