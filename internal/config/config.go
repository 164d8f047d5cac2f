package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Symbols struct {
	Default string `json:"default"`
	Suffix  string `json:"suffix"`
}

type Yahoo struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url"`
}

type HGBrasil struct {
	Enabled  bool   `json:"enabled"`
	Key      string `json:"key"`
	Endpoint string `json:"endpoint"`
}

type Monitor struct {
	// Symbols polled regardless of subscribers, e.g. the default watchlist.
	Symbols     []string `json:"symbols"`
	IntervalSec int      `json:"interval_sec"`
	MaxRPM      int      `json:"max_requests_per_minute"`
	Burst       int      `json:"burst"`
	// MinIntervalMS forces a minimum gap between upstream quote calls,
	// independent of the token bucket. Zero disables it.
	MinIntervalMS int `json:"min_interval_ms"`
}

type Signals struct {
	History      int    `json:"history"`
	KafkaEnabled bool   `json:"kafka_enabled"`
	BrokerURL    string `json:"broker_url"`
	Topic        string `json:"topic"`
	GroupID      string `json:"group_id"`
}

type Hub struct {
	SendBuffer int `json:"send_buffer"`
}

type Config struct {
	Server   Server   `json:"server"`
	Symbols  Symbols  `json:"symbols"`
	Yahoo    Yahoo    `json:"yahoo"`
	HGBrasil HGBrasil `json:"hgbrasil"`
	Monitor  Monitor  `json:"monitor"`
	Signals  Signals  `json:"signals"`
	Hub      Hub      `json:"hub"`
}

func Default() Config {
	return Config{
		Server:  Server{Port: "3000", RequestTimeoutSec: 10},
		Symbols: Symbols{Default: "AAPL", Suffix: ".SA"},
		Yahoo:   Yahoo{Enabled: true},
		HGBrasil: HGBrasil{
			Endpoint: "https://api.hgbrasil.com/finance/stock_price",
		},
		Monitor: Monitor{IntervalSec: 1, MaxRPM: 0, Burst: 1},
		Signals: Signals{
			History: 50,
			Topic:   "trading-signals",
			GroupID: "marketfeed",
		},
		Hub: Hub{SendBuffer: 256},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields
// for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := envInt("REQUEST_TIMEOUT_SEC"); v > 0 {
		cfg.Server.RequestTimeoutSec = v
	}
	if v := os.Getenv("DEFAULT_SYMBOL"); v != "" {
		cfg.Symbols.Default = v
	}
	if v := os.Getenv("SYMBOL_SUFFIX"); v != "" {
		cfg.Symbols.Suffix = v
	}
	if v := os.Getenv("YAHOO_BASE_URL"); v != "" {
		cfg.Yahoo.BaseURL = v
	}
	if v, ok := envBool("YAHOO_ENABLED"); ok {
		cfg.Yahoo.Enabled = v
	}
	if v := os.Getenv("HG_KEY"); v != "" {
		cfg.HGBrasil.Key = v
		cfg.HGBrasil.Enabled = true
	}
	if v := os.Getenv("HG_ENDPOINT"); v != "" {
		cfg.HGBrasil.Endpoint = v
	}
	if v := os.Getenv("MONITOR_SYMBOLS"); v != "" {
		cfg.Monitor.Symbols = splitCSV(v)
	}
	if v := envInt("MONITOR_INTERVAL_SEC"); v > 0 {
		cfg.Monitor.IntervalSec = v
	}
	if v := envInt("MONITOR_MAX_RPM"); v > 0 {
		cfg.Monitor.MaxRPM = v
	}
	if v := envInt("MONITOR_BURST"); v > 0 {
		cfg.Monitor.Burst = v
	}
	if v := envInt("MONITOR_MIN_INTERVAL_MS"); v > 0 {
		cfg.Monitor.MinIntervalMS = v
	}
	if v := envInt("SIGNALS_HISTORY"); v > 0 {
		cfg.Signals.History = v
	}
	if v, ok := envBool("KAFKA_ENABLED"); ok {
		cfg.Signals.KafkaEnabled = v
	}
	if v := os.Getenv("KAFKA_BROKER_URL"); v != "" {
		cfg.Signals.BrokerURL = v
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Signals.Topic = v
	}
	if v := os.Getenv("KAFKA_GROUP_ID"); v != "" {
		cfg.Signals.GroupID = v
	}
	if v := envInt("WS_SEND_BUFFER"); v > 0 {
		cfg.Hub.SendBuffer = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	var x int
	fmt.Sscanf(v, "%d", &x)
	return x
}

func envBool(key string) (bool, bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
