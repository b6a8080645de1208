// ratelimit.go implements token-bucket rate limiting for the exchange API.
//
// The exchange publishes per-tier request budgets split between read and
// write operations. Each bucket holds one second of tokens and refills
// continuously at 90% of the nominal rate, leaving headroom so a clock skew
// or a second process never trips the hard limit.
//
// Most operations cost one token; bulk cancels cost 0.2 because the server
// meters them at a fifth of a normal write.
package exchange

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tier is the account's API rate-limit tier.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierAdvanced Tier = "advanced"
	TierPremier  Tier = "premier"
	TierPrime    Tier = "prime"
)

// safetyMargin scales the nominal refill rate so a full-speed caller stays
// under the server's enforcement threshold.
const safetyMargin = 0.9

// CostBulkCancel is the token cost of a batch cancel operation.
const CostBulkCancel = 0.2

// slowWaitThreshold: waits longer than this are logged with the operation
// name so starvation is visible.
const slowWaitThreshold = 100 * time.Millisecond

// tierRates returns nominal read and write tokens per second for a tier.
// Unknown tiers get basic limits.
func tierRates(t Tier) (read, write float64) {
	switch t {
	case TierAdvanced:
		return 30, 30
	case TierPremier:
		return 100, 100
	case TierPrime:
		return 400, 400
	default:
		return 20, 10
	}
}

// TokenBucket is a continuously-refilling token bucket. Callers block in
// Take until the requested cost is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second, already margin-adjusted
	lastTime time.Time
}

// NewTokenBucket creates a bucket with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Take blocks until cost tokens are available or ctx is cancelled.
func (tb *TokenBucket) Take(ctx context.Context, cost float64) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		tb.tokens += now.Sub(tb.lastTime).Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= cost {
			tb.tokens -= cost
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((cost - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter holds the process-wide read and write buckets for one tier.
// It is shared across every client talking to the exchange.
type RateLimiter struct {
	read   *TokenBucket
	write  *TokenBucket
	logger *slog.Logger
}

// NewRateLimiter creates read/write buckets sized for the account tier.
// Capacity equals one second of nominal tokens; refill runs at the nominal
// rate times the safety margin.
func NewRateLimiter(tier Tier, logger *slog.Logger) *RateLimiter {
	read, write := tierRates(tier)
	return &RateLimiter{
		read:   NewTokenBucket(read, read*safetyMargin),
		write:  NewTokenBucket(write, write*safetyMargin),
		logger: logger.With("component", "ratelimit"),
	}
}

// WaitRead acquires one read token, logging slow waits.
func (rl *RateLimiter) WaitRead(ctx context.Context, op string) error {
	return rl.wait(ctx, rl.read, 1, op)
}

// WaitWrite acquires write tokens at the given cost, logging slow waits.
func (rl *RateLimiter) WaitWrite(ctx context.Context, cost float64, op string) error {
	return rl.wait(ctx, rl.write, cost, op)
}

func (rl *RateLimiter) wait(ctx context.Context, tb *TokenBucket, cost float64, op string) error {
	start := time.Now()
	if err := tb.Take(ctx, cost); err != nil {
		return err
	}
	if elapsed := time.Since(start); elapsed > slowWaitThreshold {
		rl.logger.Warn("rate limit wait", "op", op, "waited", elapsed)
	}
	return nil
}
