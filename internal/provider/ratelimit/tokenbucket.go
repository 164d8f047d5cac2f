package ratelimit

import (
	"context"
	"sync"
	"time"

	"marketfeed/internal/provider"
)

// TokenBucket is a stdlib-only token bucket limiter.
// rate is tokens per second, capacity the maximum burst.
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst), // start full to allow an initial burst
		last:     time.Now(),
	}
}

// wait blocks until one token is available or the context is canceled.
func (tb *TokenBucket) wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.last).Seconds()
		if elapsed > 0 {
			tb.tokens += elapsed * tb.rate
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.last = now
		}
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		deficit := 1 - tb.tokens
		tb.mu.Unlock()
		waitDur := time.Duration(deficit / tb.rate * 1e9)
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		timer := time.NewTimer(waitDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// QuoteProvider wraps a quote provider and gates calls through a token
// bucket, so a fleet of per-symbol pollers cannot hammer the upstream.
type QuoteProvider struct {
	P  provider.QuoteProvider
	TB *TokenBucket
}

func (t *QuoteProvider) Name() string { return t.P.Name() }

func (t *QuoteProvider) Quote(ctx context.Context, symbol string) (provider.RawQuote, error) {
	if t.TB != nil {
		if err := t.TB.wait(ctx); err != nil {
			return provider.RawQuote{}, err
		}
	}
	return t.P.Quote(ctx, symbol)
}
