// ratelimit.go implements token-bucket rate limiting for the REST client.
//
// Three buckets are maintained, one per endpoint category:
//   - Context: unauthenticated protocol/candle reads.
//   - History: the authenticated fills/order-history/position-history/
//     account-history endpoints, which are also the only auto-paginating
//     ones.
//   - Auth:    the sign-in handshake, which is rarely called and must never
//     be starved by a busy history walk.
//
// Orders and cancels never flow through REST in this system (the hybrid
// router routes writes to the contract exclusively), so there is no
// Order/Cancel bucket here unlike the teacher's CLOB client.
package restclient

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a continuously-refilling token bucket; Wait blocks until a
// token is available or ctx is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

// NewTokenBucket creates a bucket with the given burst capacity and
// per-second refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups token buckets by REST endpoint category.
type RateLimiter struct {
	Context *TokenBucket
	History *TokenBucket
	Auth    *TokenBucket
}

// NewRateLimiter creates rate limiters with burst/refill rates sized for a
// single trading agent rather than a market-making fleet.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Context: NewTokenBucket(60, 10),
		History: NewTokenBucket(120, 20),
		Auth:    NewTokenBucket(5, 0.5),
	}
}
