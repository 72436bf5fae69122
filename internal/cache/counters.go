package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters caches the per-user active-purchase count for fast display.
// It is a cache, not a source of truth: the guard always recounts from
// the order table.
type Counters struct {
	client *redis.Client
}

func NewCounters(address, password string, db int) (*Counters, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("conectando a redis: %w", err)
	}

	return &Counters{client: client}, nil
}

func key(userID string) string {
	return "active_purchases:" + userID
}

func (c *Counters) SetActivePurchases(ctx context.Context, userID string, n int) error {
	return c.client.Set(ctx, key(userID), n, 0).Err()
}

// ActivePurchases returns the cached count; ok=false on miss or error.
func (c *Counters) ActivePurchases(ctx context.Context, userID string) (int, bool) {
	n, err := c.client.Get(ctx, key(userID)).Int()
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *Counters) Close() error {
	return c.client.Close()
}
