package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"marketfeed/internal/bus"
	"marketfeed/internal/config"
	"marketfeed/internal/httpx"
	"marketfeed/internal/hub"
	"marketfeed/internal/ingest"
	"marketfeed/internal/monitor"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/hgbrasil"
	"marketfeed/internal/provider/ratelimit"
	"marketfeed/internal/provider/yahoo"
	"marketfeed/internal/resolve"
	"marketfeed/internal/symbol"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	httpClient := httpx.New(timeout)

	norm := symbol.New(cfg.Symbols.Default, cfg.Symbols.Suffix)

	var yahooOpts []yahoo.Option
	yahooOpts = append(yahooOpts,
		yahoo.WithHTTPClient(httpClient.HTTP),
		yahoo.WithHeader(http.Header{"User-Agent": []string{"marketfeed/1.0"}}),
	)
	if cfg.Yahoo.BaseURL != "" {
		yahooOpts = append(yahooOpts, yahoo.WithBaseURL(cfg.Yahoo.BaseURL))
	}
	yc := yahoo.New(yahooOpts...)

	hg := hgbrasil.New(hgbrasil.Config{
		Key:      cfg.HGBrasil.Key,
		Endpoint: cfg.HGBrasil.Endpoint,
	}, httpClient)

	// Quote providers in strict priority order: Yahoo first, HG Brasil as
	// fallback when configured. The resolver walks them on each request.
	var quoteProviders []provider.QuoteProvider
	if cfg.Yahoo.Enabled {
		var p provider.QuoteProvider = yc
		if cfg.Monitor.MaxRPM > 0 {
			rate := float64(cfg.Monitor.MaxRPM) / 60.0
			p = &ratelimit.QuoteProvider{P: p, TB: ratelimit.NewTokenBucket(rate, cfg.Monitor.Burst)}
		}
		if cfg.Monitor.MinIntervalMS > 0 {
			p = &ratelimit.MinInterval{P: p, Interval: time.Duration(cfg.Monitor.MinIntervalMS) * time.Millisecond}
		}
		quoteProviders = append(quoteProviders, p)
	}
	if cfg.HGBrasil.Enabled && hg.Configured() {
		quoteProviders = append(quoteProviders, hg)
	}
	if len(quoteProviders) == 0 {
		log.Warn("no quote providers enabled; /api/quote will always fail")
	}

	resolver := resolve.New(norm, quoteProviders, log)

	b := bus.New(log, cfg.Signals.History)
	poller := monitor.New(ctx, resolver, b, time.Duration(cfg.Monitor.IntervalSec)*time.Second, log)
	defer poller.Close()

	mgr := hub.NewManager(b, norm, poller, log)

	// static watchlist keeps these symbols flowing even with no subscribers
	for _, s := range cfg.Monitor.Symbols {
		poller.Watch(norm.Normalize(s))
	}

	if cfg.Signals.KafkaEnabled {
		consumer := ingest.NewConsumer(ingest.Config{
			BrokerURL: cfg.Signals.BrokerURL,
			Topic:     cfg.Signals.Topic,
			GroupID:   cfg.Signals.GroupID,
		}, b, log)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("signal consumer stopped", zap.Error(err))
			}
		}()
	}

	s := &server{
		cfg:      cfg,
		log:      log,
		norm:     norm,
		resolver: resolver,
		charts:   yc,
		hg:       hg,
		mgr:      mgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
}
