package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"ScrapSettle/internal/config"
	"ScrapSettle/internal/db"
	"ScrapSettle/internal/notify"
	"ScrapSettle/internal/relay"
	"ScrapSettle/internal/store"
	"ScrapSettle/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	telemetry.InitLogger()

	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		log.Fatalf("kafka brokers and topic are required for the relay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	publisher := notify.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer publisher.Close()

	interval := time.Duration(cfg.Relay.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	r := &relay.Relay{
		Outbox:    store.New(pool),
		Publisher: publisher,
		Interval:  interval,
		BatchSize: cfg.Relay.BatchSize,
	}

	slog.Info("relay started", "topic", cfg.Kafka.Topic, "interval", interval.String())
	r.Run(ctx)
}
