package exchange

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTierRates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tier      Tier
		wantRead  float64
		wantWrite float64
	}{
		{TierBasic, 20, 10},
		{TierAdvanced, 30, 30},
		{TierPremier, 100, 100},
		{TierPrime, 400, 400},
		{Tier("bogus"), 20, 10}, // unknown tiers fall back to basic
	}
	for _, tt := range tests {
		r, w := tierRates(tt.tier)
		if r != tt.wantRead || w != tt.wantWrite {
			t.Errorf("tierRates(%q) = (%v, %v), want (%v, %v)", tt.tier, r, w, tt.wantRead, tt.wantWrite)
		}
	}
}

func TestTokenBucketBurstWithinCapacity(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(5, 1)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := tb.Take(ctx, 1); err != nil {
			t.Fatalf("Take %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst within capacity took %v, should be immediate", elapsed)
	}
}

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 0.001) // refill so slow the bucket stays empty

	ctx := context.Background()
	if err := tb.Take(ctx, 1); err != nil {
		t.Fatalf("first Take: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := tb.Take(ctx, 1); err != context.DeadlineExceeded {
		t.Errorf("Take on empty bucket = %v, want context.DeadlineExceeded", err)
	}
}

func TestTokenBucketRefills(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 100) // 100 tokens/s: one token back every 10ms

	ctx := context.Background()
	if err := tb.Take(ctx, 1); err != nil {
		t.Fatalf("first Take: %v", err)
	}
	start := time.Now()
	if err := tb.Take(ctx, 1); err != nil {
		t.Fatalf("second Take: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("refill Take took %v, want roughly 10ms", elapsed)
	}
}

func TestTokenBucketFractionalCost(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 0.001)

	// Five bulk-cancel-priced takes drain exactly one token.
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := tb.Take(ctx, CostBulkCancel); err != nil {
			t.Fatalf("Take %d: %v", i, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := tb.Take(ctx, CostBulkCancel); err != context.DeadlineExceeded {
		t.Errorf("sixth fractional Take = %v, want context.DeadlineExceeded", err)
	}
}

func TestRateLimiterSeparatesReadAndWrite(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(TierBasic, quietLogger())

	ctx := context.Background()
	// Draining the write bucket must not consume read tokens.
	for i := 0; i < 10; i++ {
		if err := rl.WaitWrite(ctx, 1, "test_write"); err != nil {
			t.Fatalf("WaitWrite %d: %v", i, err)
		}
	}
	start := time.Now()
	if err := rl.WaitRead(ctx, "test_read"); err != nil {
		t.Fatalf("WaitRead: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("read after write drain took %v, should be immediate", elapsed)
	}
}
