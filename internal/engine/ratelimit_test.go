package engine

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterTryConsume(t *testing.T) {
	rl := NewRateLimiter(2)
	if !rl.TryConsume() || !rl.TryConsume() {
		t.Fatal("expected two tokens available")
	}
	if rl.TryConsume() {
		t.Error("expected bucket to be empty")
	}
	if got := rl.Status().TotalConsumed; got != 2 {
		t.Errorf("TotalConsumed = %d", got)
	}
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("expected context error while bucket is empty")
	}
}

func TestRateLimiterRecord429Drains(t *testing.T) {
	rl := NewRateLimiter(100)
	rl.Record429(2 * time.Second)

	status := rl.Status()
	if status.TokensAvailable != 0 {
		t.Errorf("TokensAvailable = %d, want 0", status.TokensAvailable)
	}
	if status.Last429Time.IsZero() {
		t.Error("expected Last429Time to be set")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(6000)
	for rl.TryConsume() {
	}
	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("waited %v for a token refilled every 10ms", waited)
	}
	if st := rl.Status(); st.TokensLimit != 6000 || st.Utilization <= 0.9 {
		t.Errorf("status = %+v", st)
	}
}
