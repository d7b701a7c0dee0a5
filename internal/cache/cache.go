package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache holds ephemeral state in Redis: the latest accepted price per
// symbol and the daily external-API request counter.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection
func New(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// LatestPrice is the cached latest observation for one symbol
type LatestPrice struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

func latestPriceKey(symbol string) string {
	return "price:latest:" + symbol
}

// SetLatestPrice stores the latest price for a symbol with a 24h TTL
func (c *Cache) SetLatestPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	err := c.client.HSet(ctx, latestPriceKey(symbol),
		"price", price.String(),
		"timestamp", ts.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to cache latest price: %w", err)
	}
	return c.client.Expire(ctx, latestPriceKey(symbol), 24*time.Hour).Err()
}

// GetLatestPrice returns the cached latest price for a symbol, or nil when
// the symbol has no cached observation.
func (c *Cache) GetLatestPrice(ctx context.Context, symbol string) (*LatestPrice, error) {
	fields, err := c.client.HGetAll(ctx, latestPriceKey(symbol)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached price: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	price, err := decimal.NewFromString(fields["price"])
	if err != nil {
		return nil, fmt.Errorf("corrupt cached price for %s: %w", symbol, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("corrupt cached timestamp for %s: %w", symbol, err)
	}

	return &LatestPrice{Price: price, Timestamp: ts}, nil
}

// IncrementRequestCount bumps today's external-API request counter and
// returns the new total. The key expires after two days.
func (c *Cache) IncrementRequestCount(ctx context.Context, day time.Time) (int64, error) {
	key := "quota:requests:" + day.Format("2006-01-02")
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment request count: %w", err)
	}
	if count == 1 {
		_ = c.client.Expire(ctx, key, 48*time.Hour).Err()
	}
	return count, nil
}

// Ping verifies the Redis connection is alive
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *Cache) Close() error {
	return c.client.Close()
}
