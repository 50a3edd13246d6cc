package relay

import (
	"context"
	"log/slog"
	"time"

	"ScrapSettle/internal/metrics"
	"ScrapSettle/internal/models"
)

type Outbox interface {
	ProcessOutbox(ctx context.Context, limit int, handle func(msg *models.OutboxMessage) error) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, msg *models.OutboxMessage) error
}

// Relay drains the outbox into the broker. Messages stay in the outbox
// until the publish succeeds, so a broker outage delays notifications
// instead of losing them.
type Relay struct {
	Outbox    Outbox
	Publisher Publisher
	Interval  time.Duration
	BatchSize int
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		if err := r.RelayOnce(ctx); err != nil {
			metrics.OutboxPublishFailures.Inc()
			slog.Error("outbox relay failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Relay) RelayOnce(ctx context.Context) error {
	n, err := r.Outbox.ProcessOutbox(ctx, r.BatchSize, func(msg *models.OutboxMessage) error {
		return r.Publisher.Publish(ctx, msg)
	})
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.OutboxPublished.Add(float64(n))
		slog.InfoContext(ctx, "outbox relayed", "count", n)
	}
	return nil
}
