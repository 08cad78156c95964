package batch

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterAllowsCapacity(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first %d waits took %s, expected no blocking", 3, elapsed)
	}
	if rl.Pending() != 3 {
		t.Errorf("pending = %d, want 3", rl.Pending())
	}
}

func TestRateLimiterBlocksOverCapacity(t *testing.T) {
	window := 150 * time.Millisecond
	rl := NewRateLimiter(2, window)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	// The third request must wait for the first stamp to leave the window.
	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("third wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < window/2 {
		t.Errorf("third wait returned after %s, want at least ~%s", elapsed, window)
	}
}

func TestRateLimiterWaitHonoursCancellation(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	if err == nil {
		t.Fatal("expected context error while blocked")
	}
	if err != context.DeadlineExceeded {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestRateLimiterEvictsExpiredStamps(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	time.Sleep(80 * time.Millisecond)
	if rl.Pending() != 0 {
		t.Errorf("pending = %d after window expiry, want 0", rl.Pending())
	}
}
