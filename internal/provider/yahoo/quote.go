package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"marketfeed/internal/provider"
)

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol                     string   `json:"symbol"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	PostMarketPrice            *float64 `json:"postMarketPrice"`
	PreMarketPrice             *float64 `json:"preMarketPrice"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	PostMarketChangePercent    *float64 `json:"postMarketChangePercent"`
	PreMarketChangePercent     *float64 `json:"preMarketChangePercent"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Quote fetches the current quote for one symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (provider.RawQuote, error) {
	query := url.Values{}
	query.Set("symbols", symbol)

	u := fmt.Sprintf("%s/v7/finance/quote?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return provider.RawQuote{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.RawQuote{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return provider.RawQuote{}, fmt.Errorf("quote %s: %w", symbol, provider.ErrNoPrice)
	case http.StatusTooManyRequests:
		return provider.RawQuote{}, fmt.Errorf("quote %s: rate limited", symbol)
	default:
		return provider.RawQuote{}, fmt.Errorf("quote %s: unexpected status code %d", symbol, res.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return provider.RawQuote{}, fmt.Errorf("decoding quote response: %w", err)
	}
	if e := body.QuoteResponse.Error; e != nil {
		return provider.RawQuote{}, fmt.Errorf("quote %s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(body.QuoteResponse.Result) == 0 {
		return provider.RawQuote{}, fmt.Errorf("quote %s: %w", symbol, provider.ErrNoPrice)
	}

	r := body.QuoteResponse.Result[0]
	return provider.RawQuote{
		Symbol:                     r.Symbol,
		RegularMarketPrice:         r.RegularMarketPrice,
		PostMarketPrice:            r.PostMarketPrice,
		PreMarketPrice:             r.PreMarketPrice,
		RegularMarketChangePercent: r.RegularMarketChangePercent,
		PostMarketChangePercent:    r.PostMarketChangePercent,
		PreMarketChangePercent:     r.PreMarketChangePercent,
	}, nil
}
