// Package ingest consumes trading signals produced by the upstream analysis
// engine and publishes them onto the bus. The engine itself is an external
// producer; this side only validates and forwards.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"marketfeed/internal/market"
)

// Publisher is the bus side the ingestor needs.
type Publisher interface {
	Publish(topic string, item any)
}

// reader is the subset of kafka.Reader the consumer uses; swapped for a
// fake in tests.
type reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Config struct {
	BrokerURL string
	Topic     string
	GroupID   string
}

// Consumer reads Signal JSON off a Kafka topic and publishes each valid
// signal to the bus signals topic.
type Consumer struct {
	r   reader
	pub Publisher
	log *zap.Logger
}

func NewConsumer(cfg Config, pub Publisher, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{cfg.BrokerURL},
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return &Consumer{r: r, pub: pub, log: log}
}

// wire is the JSON shape the signal engine emits. ObservedAt is epoch
// milliseconds on the wire.
type wire struct {
	Symbol     string             `json:"symbol"`
	Signal     string             `json:"signal"`
	Price      float64            `json:"price"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Timestamp  int64              `json:"timestamp"`
}

// Run consumes until the context is canceled or the reader is closed.
// Malformed or unusable payloads are logged and skipped, never fatal.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.r.Close()

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		sig, err := decode(m.Value)
		if err != nil {
			c.log.Warn("dropping bad signal payload", zap.ByteString("value", m.Value), zap.Error(err))
			continue
		}
		c.pub.Publish(market.SignalsTopic, sig)
		c.log.Debug("signal ingested",
			zap.String("symbol", sig.Symbol),
			zap.String("signal", string(sig.Recommendation)))
	}
}

func decode(value []byte) (market.Signal, error) {
	var w wire
	if err := json.Unmarshal(value, &w); err != nil {
		return market.Signal{}, err
	}
	rec := market.Recommendation(w.Signal)
	if !rec.Valid() {
		return market.Signal{}, errors.New("unknown recommendation " + w.Signal)
	}
	if math.IsNaN(w.Price) || math.IsInf(w.Price, 0) || w.Price < 0 {
		return market.Signal{}, errors.New("unusable price")
	}
	at := time.Now().UTC()
	if w.Timestamp > 0 {
		at = time.UnixMilli(w.Timestamp).UTC()
	}
	return market.Signal{
		Symbol:         w.Symbol,
		Recommendation: rec,
		Price:          w.Price,
		Indicators:     w.Indicators,
		ObservedAt:     at,
	}, nil
}
