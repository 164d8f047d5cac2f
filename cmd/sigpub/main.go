// Command sigpub publishes trading signals onto the Kafka topic the server
// ingests from. It is an operator tool for smoke-testing the signal path
// end to end without the analysis engine running.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
)

type payload struct {
	Symbol     string             `json:"symbol"`
	Signal     string             `json:"signal"`
	Price      float64            `json:"price"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Timestamp  int64              `json:"timestamp"`
}

func main() {
	broker := flag.String("broker", "localhost:9092", "kafka broker address")
	topic := flag.String("topic", "trading-signals", "kafka topic")
	symbol := flag.String("symbol", "PETR4.SA", "signal symbol")
	sig := flag.String("signal", "BUY", "recommendation: BUY, SELL or HOLD")
	price := flag.Float64("price", 38.42, "signal price")
	count := flag.Int("count", 1, "number of signals to publish")
	every := flag.Duration("every", time.Second, "delay between signals when count > 1")
	walk := flag.Bool("walk", false, "random-walk the price and recommendation each signal")
	flag.Parse()

	rec := strings.ToUpper(*sig)
	switch rec {
	case "BUY", "SELL", "HOLD":
	default:
		fmt.Fprintf(os.Stderr, "unknown signal %q\n", *sig)
		os.Exit(2)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(*broker),
		Topic:        *topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := *price
	for i := 0; i < *count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(*every):
			}
		}
		if *walk && i > 0 {
			p += p * (rand.Float64() - 0.5) * 0.01
			rec = []string{"BUY", "SELL", "HOLD"}[rand.Intn(3)]
		}

		body, err := json.Marshal(payload{
			Symbol: *symbol,
			Signal: rec,
			Price:  p,
			Indicators: map[string]float64{
				"rsi":  30 + rand.Float64()*40,
				"macd": (rand.Float64() - 0.5) * 2,
			},
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		err = w.WriteMessages(ctx, kafka.Message{Key: []byte(*symbol), Value: body})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("published %s %s @ %.2f\n", rec, *symbol, p)
	}
}
