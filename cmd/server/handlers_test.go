package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketfeed/internal/bus"
	"marketfeed/internal/config"
	"marketfeed/internal/httpx"
	"marketfeed/internal/hub"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/hgbrasil"
	"marketfeed/internal/resolve"
	"marketfeed/internal/symbol"
)

type fakeQuotes struct {
	quote provider.RawQuote
	err   error
}

func (f *fakeQuotes) Name() string { return "fake" }

func (f *fakeQuotes) Quote(ctx context.Context, sym string) (provider.RawQuote, error) {
	return f.quote, f.err
}

type fakeCharts struct {
	payload provider.ChartPayload
	err     error

	gotSymbol   string
	gotInterval string
	gotRange    string
}

func (f *fakeCharts) Name() string { return "fake" }

func (f *fakeCharts) Chart(ctx context.Context, sym, interval, rng string) (provider.ChartPayload, error) {
	f.gotSymbol, f.gotInterval, f.gotRange = sym, interval, rng
	return f.payload, f.err
}

type noopWatcher struct{}

func (noopWatcher) Watch(string)   {}
func (noopWatcher) Unwatch(string) {}

func ptr(f float64) *float64 { return &f }

func newTestServer(t *testing.T, quotes provider.QuoteProvider, charts provider.ChartProvider, hg *hgbrasil.Provider) *server {
	t.Helper()

	log := zap.NewNop()
	norm := symbol.New("AAPL", ".SA")
	var providers []provider.QuoteProvider
	if quotes != nil {
		providers = append(providers, quotes)
	}
	if hg == nil {
		hg = hgbrasil.New(hgbrasil.Config{}, httpx.New(time.Second))
	}
	b := bus.New(log, 50)
	return &server{
		cfg:      config.Default(),
		log:      log,
		norm:     norm,
		resolver: resolve.New(norm, providers, log),
		charts:   charts,
		hg:       hg,
		mgr:      hub.NewManager(b, norm, noopWatcher{}, log),
	}
}

func doRequest(t *testing.T, s *server, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return rec, body
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil, nil)
	rec, body := doRequest(t, s, "/api/health")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.NotZero(t, body["ts"])
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestQuoteHandler(t *testing.T) {
	t.Parallel()

	quotes := &fakeQuotes{quote: provider.RawQuote{
		RegularMarketPrice:         ptr(38.42),
		RegularMarketChangePercent: ptr(1.2),
	}}
	s := newTestServer(t, quotes, nil, nil)

	rec, body := doRequest(t, s, "/api/quote?symbol=petr4")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "PETR4.SA", body["symbol"])
	require.Equal(t, 38.42, body["price"])
	require.Equal(t, 1.2, body["change"])
}

func TestQuoteHandlerDefaultsSymbol(t *testing.T) {
	t.Parallel()

	quotes := &fakeQuotes{quote: provider.RawQuote{RegularMarketPrice: ptr(189.3)}}
	s := newTestServer(t, quotes, nil, nil)

	rec, body := doRequest(t, s, "/api/quote")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "AAPL", body["symbol"])
	require.Equal(t, float64(0), body["change"])
}

func TestQuoteHandlerNoPrice(t *testing.T) {
	t.Parallel()

	quotes := &fakeQuotes{err: fmt.Errorf("upstream: %w", provider.ErrNoPrice)}
	s := newTestServer(t, quotes, nil, nil)

	rec, body := doRequest(t, s, "/api/quote?symbol=NOPE")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "No price", body["error"])
}

func TestQuoteHandlerUpstreamFailure(t *testing.T) {
	t.Parallel()

	quotes := &fakeQuotes{err: errors.New("connection refused")}
	s := newTestServer(t, quotes, nil, nil)

	rec, body := doRequest(t, s, "/api/quote?symbol=PETR4")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "quote_failed", body["error"])
}

func TestSeriesHandler(t *testing.T) {
	t.Parallel()

	charts := &fakeCharts{payload: provider.ChartPayload{Results: []provider.ChartResult{{
		Timestamps: []int64{1000, 1001, 1002},
		Closes:     []*float64{ptr(10), nil, ptr(12)},
	}}}}
	s := newTestServer(t, nil, charts, nil)

	rec, body := doRequest(t, s, "/api/series?symbol=petr4&interval=5m&range=5d")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "PETR4.SA", body["symbol"])
	require.Equal(t, "5m", body["interval"])
	require.Equal(t, "5d", body["range"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	require.Equal(t, float64(1000000), first["t"])
	require.Equal(t, float64(10), first["y"])

	require.Equal(t, "PETR4.SA", charts.gotSymbol)
	require.Equal(t, "5m", charts.gotInterval)
	require.Equal(t, "5d", charts.gotRange)
}

func TestSeriesHandlerSubstitutesInvalidInterval(t *testing.T) {
	t.Parallel()

	charts := &fakeCharts{payload: provider.ChartPayload{Results: []provider.ChartResult{{}}}}
	s := newTestServer(t, nil, charts, nil)

	rec, body := doRequest(t, s, "/api/series?symbol=AAPL&interval=7m")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1m", body["interval"])
	require.Equal(t, "1d", body["range"])
	require.Equal(t, "1m", charts.gotInterval)
}

func TestSeriesHandlerNoResult(t *testing.T) {
	t.Parallel()

	charts := &fakeCharts{err: fmt.Errorf("chart: %w", provider.ErrNoResult)}
	s := newTestServer(t, nil, charts, nil)

	rec, body := doRequest(t, s, "/api/series?symbol=GONE")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "no_result", body["error"])
}

func TestSeriesHandlerUpstreamFailure(t *testing.T) {
	t.Parallel()

	charts := &fakeCharts{err: errors.New("timeout")}
	s := newTestServer(t, nil, charts, nil)

	rec, body := doRequest(t, s, "/api/series?symbol=PETR4")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "series_failed", body["error"])
}

func TestHGQuoteHandlerMissingKey(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil, nil)
	rec, body := doRequest(t, s, "/api/hg/quote?symbol=PETR4")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "missing_hg_key", body["error"])
}

func TestHGQuoteHandler(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PETR4", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"results":{"PETR4":{"symbol":"PETR4","price":34.21}}}`)
	}))
	defer upstream.Close()

	hg := hgbrasil.New(hgbrasil.Config{Key: "k", Endpoint: upstream.URL}, httpx.New(time.Second))
	s := newTestServer(t, nil, nil, hg)

	rec, body := doRequest(t, s, "/api/hg/quote?symbol=petr4")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "PETR4", body["symbol"])
	require.Equal(t, 34.21, body["price"])
}

func TestHGQuoteHandlerDefaultSymbol(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"results":{%q:{"current_price":12.5}}}`, r.URL.Query().Get("symbol"))
	}))
	defer upstream.Close()

	hg := hgbrasil.New(hgbrasil.Config{Key: "k", Endpoint: upstream.URL}, httpx.New(time.Second))
	s := newTestServer(t, nil, nil, hg)

	rec, body := doRequest(t, s, "/api/hg/quote")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "PETR4", body["symbol"])
	require.Equal(t, 12.5, body["price"])
}

func TestHGQuoteHandlerUpstreamFailure(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	hg := hgbrasil.New(hgbrasil.Config{Key: "k", Endpoint: upstream.URL}, httpx.New(time.Second))
	s := newTestServer(t, nil, nil, hg)

	rec, body := doRequest(t, s, "/api/hg/quote?symbol=PETR4")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "hg_failed", body["error"])
}

func TestHGQuoteHandlerNoPrice(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":{"XXXX9":{"symbol":"XXXX9"}}}`)
	}))
	defer upstream.Close()

	hg := hgbrasil.New(hgbrasil.Config{Key: "k", Endpoint: upstream.URL}, httpx.New(time.Second))
	s := newTestServer(t, nil, nil, hg)

	rec, body := doRequest(t, s, "/api/hg/quote?symbol=XXXX9")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "No price", body["error"])
}

func TestWSStatsHandler(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil, nil)
	rec, body := doRequest(t, s, "/api/ws/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(0), body["total_connections"])
}
