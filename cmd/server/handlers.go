package main

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"marketfeed/internal/config"
	"marketfeed/internal/hub"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/hgbrasil"
	"marketfeed/internal/resolve"
	"marketfeed/internal/series"
	"marketfeed/internal/symbol"
)

type server struct {
	cfg      config.Config
	log      *zap.Logger
	norm     *symbol.Normalizer
	resolver *resolve.Resolver
	charts   provider.ChartProvider
	hg       *hgbrasil.Provider
	mgr      *hub.Manager

	upgrader websocket.Upgrader
}

func (s *server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/health", s.handleHealth)
	api.HandleFunc("GET /api/quote", s.handleQuote)
	api.HandleFunc("GET /api/series", s.handleSeries)
	api.HandleFunc("GET /api/hg/quote", s.handleHGQuote)
	api.HandleFunc("GET /api/ws/stats", s.handleWSStats)

	// WebSocket upgrades must not pass through the gzip writer, which does
	// not implement http.Hijacker.
	root := http.NewServeMux()
	root.Handle("/api/", withJSONHeaders(withGzip(recoverPanic(s.log, limitBody(api)))))
	root.HandleFunc("GET /ws", s.handleWS)
	root.HandleFunc("GET /ws/signals", s.handleWSSignals)
	root.HandleFunc("GET /ws/market/{symbol}", s.handleWSMarket)
	return root
}

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": time.Now().UnixMilli()})
}

func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.resolver.Resolve(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		if errors.Is(err, provider.ErrNoPrice) {
			writeError(w, http.StatusNotFound, "No price")
			return
		}
		s.log.Warn("quote failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "quote_failed")
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Symbol: q.Symbol, Price: q.Price, Change: q.ChangePercent})
}

func (s *server) handleSeries(w http.ResponseWriter, r *http.Request) {
	sym := s.norm.Normalize(r.URL.Query().Get("symbol"))
	interval := symbol.ValidInterval(r.URL.Query().Get("interval"))
	rng := r.URL.Query().Get("range")
	if rng == "" {
		rng = "1d"
	}

	chart, err := s.charts.Chart(r.Context(), sym, interval, rng)
	if err != nil {
		s.writeSeriesError(w, err)
		return
	}
	res, err := series.Build(sym, interval, rng, chart)
	if err != nil {
		s.writeSeriesError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) writeSeriesError(w http.ResponseWriter, err error) {
	if errors.Is(err, provider.ErrNoResult) {
		writeError(w, http.StatusNotFound, "no_result")
		return
	}
	s.log.Warn("series failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "series_failed")
}

func (s *server) handleHGQuote(w http.ResponseWriter, r *http.Request) {
	if !s.hg.Configured() {
		writeError(w, http.StatusBadRequest, "missing_hg_key")
		return
	}

	// HG Brasil takes bare B3 tickers, so skip the exchange suffix here.
	sym := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if sym == "" {
		sym = "PETR4"
	}

	raw, err := s.hg.Quote(r.Context(), sym)
	if err != nil {
		if errors.Is(err, provider.ErrNoPrice) {
			writeError(w, http.StatusNotFound, "No price")
			return
		}
		s.log.Warn("hg quote failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "hg_failed")
		return
	}
	price, ok := raw.Price()
	if !ok {
		writeError(w, http.StatusNotFound, "No price")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": sym, "price": price})
}

func (s *server) handleWSStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Stats())
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r)
}

// handleWSMarket serves the legacy per-symbol endpoint by pre-subscribing
// the multiplexed client to the symbol's topic.
func (s *server) handleWSMarket(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, r.PathValue("symbol"))
}

func (s *server) handleWSSignals(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, "signals")
}

func (s *server) serveWS(w http.ResponseWriter, r *http.Request, initialTopics ...string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := hub.NewClient(ws, s.mgr, s.log, s.cfg.Hub.SendBuffer)
	c.Start(initialTopics...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	zw *gzip.Writer
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) { return g.zw.Write(p) }

func withGzip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		defer zw.Close()
		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, zw: zw}, r)
	})
}

func recoverPanic(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("handler panic", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}
