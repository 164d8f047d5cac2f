// Package resolve turns a free-form symbol into a single canonical Quote by
// querying an ordered list of upstream providers.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/market"
	"marketfeed/internal/provider"
	"marketfeed/internal/symbol"
)

// Resolver tries providers strictly in the order they were configured.
// It performs no caching: every call re-queries the providers. Latency is
// bounded by the request context; correctness is never traded for staleness.
type Resolver struct {
	norm      *symbol.Normalizer
	providers []provider.QuoteProvider
	log       *zap.Logger
}

func New(norm *symbol.Normalizer, providers []provider.QuoteProvider, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{norm: norm, providers: providers, log: log}
}

// Resolve normalizes the symbol once, then attempts each provider in order.
// Any provider error or non-finite price falls through to the next provider.
// With all providers exhausted the call fails with ErrNoPrice, unless every
// attempt ended in a transport error, in which case the last error surfaces
// so callers can tell an outage apart from an unknown symbol.
func (r *Resolver) Resolve(ctx context.Context, rawSymbol string) (market.Quote, error) {
	sym := r.norm.Normalize(rawSymbol)

	var lastErr error
	sawResponse := false
	for _, p := range r.providers {
		rq, err := p.Quote(ctx, sym)
		if err != nil {
			r.log.Warn("provider failed",
				zap.String("provider", p.Name()),
				zap.String("symbol", sym),
				zap.Error(err))
			if errors.Is(err, provider.ErrNoPrice) {
				sawResponse = true
			} else {
				lastErr = err
			}
			continue
		}
		sawResponse = true
		price, ok := rq.Price()
		if !ok {
			r.log.Warn("provider returned no usable price",
				zap.String("provider", p.Name()),
				zap.String("symbol", sym))
			continue
		}
		q, err := market.NewQuote(sym, price, rq.ChangePercent(), time.Now().UTC())
		if err != nil {
			r.log.Warn("provider quote rejected",
				zap.String("provider", p.Name()),
				zap.String("symbol", sym),
				zap.Error(err))
			continue
		}
		return q, nil
	}
	if !sawResponse && lastErr != nil {
		return market.Quote{}, fmt.Errorf("resolve %s: %w", sym, lastErr)
	}
	return market.Quote{}, fmt.Errorf("resolve %s: %w", sym, provider.ErrNoPrice)
}
