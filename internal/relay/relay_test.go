package relay

import (
	"context"
	"errors"
	"testing"

	"ScrapSettle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	messages []*models.OutboxMessage
}

func (f *fakeOutbox) ProcessOutbox(ctx context.Context, limit int, handle func(msg *models.OutboxMessage) error) (int, error) {
	var done int
	for _, msg := range f.messages {
		if limit > 0 && done >= limit {
			break
		}
		if err := handle(msg); err != nil {
			return 0, err
		}
		done++
	}
	f.messages = f.messages[done:]
	return done, nil
}

type fakePublisher struct {
	published []*models.OutboxMessage
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, msg *models.OutboxMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func TestRelayOnce(t *testing.T) {
	outbox := &fakeOutbox{messages: []*models.OutboxMessage{
		{ID: "msg-1", OrderID: "ord-1", Kind: "order.confirmed"},
		{ID: "msg-2", OrderID: "ord-2", Kind: "payment.failed"},
	}}
	pub := &fakePublisher{}
	r := &Relay{Outbox: outbox, Publisher: pub, BatchSize: 10}

	require.NoError(t, r.RelayOnce(context.Background()))

	assert.Len(t, pub.published, 2)
	assert.Empty(t, outbox.messages)
}

func TestRelayOnceBatchLimit(t *testing.T) {
	outbox := &fakeOutbox{messages: []*models.OutboxMessage{
		{ID: "msg-1", OrderID: "ord-1"},
		{ID: "msg-2", OrderID: "ord-2"},
		{ID: "msg-3", OrderID: "ord-3"},
	}}
	pub := &fakePublisher{}
	r := &Relay{Outbox: outbox, Publisher: pub, BatchSize: 2}

	require.NoError(t, r.RelayOnce(context.Background()))
	assert.Len(t, pub.published, 2)
	assert.Len(t, outbox.messages, 1)

	require.NoError(t, r.RelayOnce(context.Background()))
	assert.Len(t, pub.published, 3)
	assert.Empty(t, outbox.messages)
}

func TestRelayOncePublishFailureKeepsMessages(t *testing.T) {
	outbox := &fakeOutbox{messages: []*models.OutboxMessage{{ID: "msg-1", OrderID: "ord-1"}}}
	pub := &fakePublisher{err: errors.New("broker down")}
	r := &Relay{Outbox: outbox, Publisher: pub, BatchSize: 10}

	err := r.RelayOnce(context.Background())
	assert.Error(t, err)
	assert.Len(t, outbox.messages, 1)
}
