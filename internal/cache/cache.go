package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"ScrapSettle/internal/models"

	"github.com/redis/go-redis/v9"
)

// OrderCache is a best-effort read cache for order status lookups. A nil
// cache is valid and caches nothing, so wiring stays optional. Entries are
// invalidated on every transition the HTTP layer sees and expire on TTL
// otherwise.
type OrderCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewOrderCache(addr string, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &OrderCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (c *OrderCache) key(orderID string) string {
	return "order:" + orderID
}

func (c *OrderCache) Get(ctx context.Context, orderID string) (*models.Order, bool) {
	if c == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, c.key(orderID)).Result()
	if err != nil {
		if err != redis.Nil {
			slog.DebugContext(ctx, "order cache get failed", "error", err)
		}
		return nil, false
	}
	var order models.Order
	if err := json.Unmarshal([]byte(val), &order); err != nil {
		return nil, false
	}
	return &order, true
}

func (c *OrderCache) Set(ctx context.Context, order *models.Order) {
	if c == nil {
		return
	}
	body, err := json.Marshal(order)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(order.OrderID), body, c.ttl).Err(); err != nil {
		slog.DebugContext(ctx, "order cache set failed", "error", err)
	}
}

func (c *OrderCache) Invalidate(ctx context.Context, orderID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(orderID)).Err(); err != nil {
		slog.DebugContext(ctx, "order cache invalidate failed", "error", err)
	}
}

func (c *OrderCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
