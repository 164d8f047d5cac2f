// Package monitor runs ref-counted per-symbol pollers that resolve quotes
// on a fixed cadence and publish them to the bus.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/market"
)

// QuoteSource resolves one symbol to a quote; satisfied by resolve.Resolver.
type QuoteSource interface {
	Resolve(ctx context.Context, symbol string) (market.Quote, error)
}

// Publisher is the bus side the poller needs; satisfied by bus.Bus.
type Publisher interface {
	Publish(topic string, item any)
}

// Poller owns one polling goroutine per watched symbol. Watch and Unwatch
// are ref-counted: the goroutine starts on the first watcher and stops when
// the last one leaves, so a detached connection never leaks a poller.
type Poller struct {
	src      QuoteSource
	pub      Publisher
	log      *zap.Logger
	interval time.Duration

	base context.Context

	mu      sync.Mutex
	refs    map[string]int
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func New(ctx context.Context, src QuoteSource, pub Publisher, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		src:      src,
		pub:      pub,
		log:      log,
		interval: interval,
		base:     ctx,
		refs:     make(map[string]int),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Watch adds a reference to symbol, starting its poll loop on the first one.
func (p *Poller) Watch(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refs[symbol]++
	if p.refs[symbol] > 1 {
		return
	}
	ctx, cancel := context.WithCancel(p.base)
	p.cancels[symbol] = cancel
	p.wg.Add(1)
	go p.loop(ctx, symbol)
}

// Unwatch drops a reference, stopping the poll loop when none remain.
// Extra calls for an unwatched symbol are no-ops.
func (p *Poller) Unwatch(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs[symbol] == 0 {
		return
	}
	p.refs[symbol]--
	if p.refs[symbol] > 0 {
		return
	}
	delete(p.refs, symbol)
	if cancel := p.cancels[symbol]; cancel != nil {
		cancel()
		delete(p.cancels, symbol)
	}
}

// Active reports how many symbols currently have a running poll loop.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

// Close stops every poll loop and waits for them to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	for sym, cancel := range p.cancels {
		cancel()
		delete(p.cancels, sym)
		delete(p.refs, sym)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context, symbol string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// first sample immediately so a new subscriber is not left waiting a
	// full interval
	p.pollOnce(ctx, symbol)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, symbol)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, symbol string) {
	callCtx, cancel := context.WithTimeout(ctx, p.interval*3)
	defer cancel()

	q, err := p.src.Resolve(callCtx, symbol)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("poll failed", zap.String("symbol", symbol), zap.Error(err))
		}
		return
	}
	p.pub.Publish(market.Topic(symbol), q)
}
