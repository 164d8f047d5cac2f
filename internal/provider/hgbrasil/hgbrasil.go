// Package hgbrasil is a client for the HG Brasil finance API, used as a
// secondary quote source for B3 tickers. It requires an API key.
package hgbrasil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"marketfeed/internal/httpx"
	"marketfeed/internal/provider"
)

type Config struct {
	Name     string
	Endpoint string
	// Key is the HG Brasil API key. Calls fail with ErrMissingKey when empty.
	Key string
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "hgbrasil"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.hgbrasil.com/finance/stock_price"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

// Configured reports whether an API key is present.
func (p *Provider) Configured() bool { return p.cfg.Key != "" }

// stockResult is one entry of the keyed "results" object. HG spells the
// price field differently across plans, hence the two candidates.
type stockResult struct {
	Symbol       string   `json:"symbol"`
	Price        *float64 `json:"price"`
	CurrentPrice *float64 `json:"current_price"`
	ChangePct    *float64 `json:"change_percent"`
}

type apiResponse struct {
	Results map[string]stockResult `json:"results"`
}

func (p *Provider) Quote(ctx context.Context, symbol string) (provider.RawQuote, error) {
	if p.cfg.Key == "" {
		return provider.RawQuote{}, provider.ErrMissingKey
	}

	q := url.Values{}
	q.Set("key", p.cfg.Key)
	q.Set("symbol", symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return provider.RawQuote{}, err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return provider.RawQuote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return provider.RawQuote{}, fmt.Errorf("GET %s -> %d: %s", p.cfg.Endpoint, resp.StatusCode, string(b))
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return provider.RawQuote{}, fmt.Errorf("decode: %w", err)
	}

	// HG keys results by ticker; take the first (and only) entry.
	for _, r := range api.Results {
		price := r.Price
		if price == nil {
			price = r.CurrentPrice
		}
		if price == nil {
			break
		}
		out := provider.RawQuote{Symbol: symbol, RegularMarketPrice: price}
		if r.ChangePct != nil {
			out.RegularMarketChangePercent = r.ChangePct
		}
		return out, nil
	}
	return provider.RawQuote{}, fmt.Errorf("hg %s: %w", symbol, provider.ErrNoPrice)
}
