package notify

import (
	"context"

	"ScrapSettle/internal/models"

	"github.com/segmentio/kafka-go"
)

// Publisher writes notification messages to the broker. Delivery downstream
// is at least once; consumers dedup on the message id.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, msg *models.OutboxMessage) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.OrderID),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(msg.ID)},
			{Key: "kind", Value: []byte(msg.Kind)},
		},
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
