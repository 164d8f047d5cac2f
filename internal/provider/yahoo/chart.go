package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"marketfeed/internal/provider"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Chart fetches the raw chart payload for one symbol. Identical in-flight
// requests are coalesced into a single upstream call.
func (c *Client) Chart(ctx context.Context, symbol, interval, rng string) (provider.ChartPayload, error) {
	key := symbol + "|" + interval + "|" + rng
	v, err, _ := c.sf.Do(key, func() (any, error) {
		return c.fetchChart(ctx, symbol, interval, rng)
	})
	if err != nil {
		return provider.ChartPayload{}, err
	}
	return v.(provider.ChartPayload), nil
}

func (c *Client) fetchChart(ctx context.Context, symbol, interval, rng string) (provider.ChartPayload, error) {
	query := url.Values{}
	query.Set("interval", interval)
	query.Set("range", rng)

	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return provider.ChartPayload{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.ChartPayload{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return provider.ChartPayload{}, fmt.Errorf("chart %s: %w", symbol, provider.ErrNoResult)
	case http.StatusTooManyRequests:
		return provider.ChartPayload{}, fmt.Errorf("chart %s: rate limited", symbol)
	default:
		return provider.ChartPayload{}, fmt.Errorf("chart %s: unexpected status code %d", symbol, res.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return provider.ChartPayload{}, fmt.Errorf("decoding chart response: %w", err)
	}
	if e := body.Chart.Error; e != nil {
		return provider.ChartPayload{}, fmt.Errorf("chart %s: %s: %s", symbol, e.Code, e.Description)
	}

	out := provider.ChartPayload{Results: make([]provider.ChartResult, 0, len(body.Chart.Result))}
	for _, r := range body.Chart.Result {
		var closes []*float64
		if len(r.Indicators.Quote) > 0 {
			closes = r.Indicators.Quote[0].Close
		}
		out.Results = append(out.Results, provider.ChartResult{
			Timestamps: r.Timestamp,
			Closes:     closes,
		})
	}
	return out, nil
}
