package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"points-service/internal/models"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetWebhookSeen records a webhook id as seen with a TTL matching the
// dedupe window. Fast path in front of the webhook_logs lookup.
func (c *Client) SetWebhookSeen(ctx context.Context, webhookID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("webhook:seen:%s", webhookID), "1", ttl).Err()
}

// IsWebhookSeen checks whether a webhook id was recorded recently.
func (c *Client) IsWebhookSeen(ctx context.Context, webhookID string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("webhook:seen:%s", webhookID)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireUserLock takes the per-user exclusive lock that serializes ledger
// conversions. Returns false when another holder owns it.
func (c *Client) AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:balance:%s", userID), "1", ttl).Result()
}

// ReleaseUserLock releases the per-user ledger lock.
func (c *Client) ReleaseUserLock(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:balance:%s", userID)).Err()
}

// CacheBalance stores a user's balance snapshot.
func (c *Client) CacheBalance(ctx context.Context, balance *models.UserBalance, ttl time.Duration) error {
	raw, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("failed to marshal balance: %w", err)
	}
	return c.rdb.Set(ctx, fmt.Sprintf("balance:%s", balance.UserID), raw, ttl).Err()
}

// GetCachedBalance retrieves a cached balance snapshot. Returns nil on a
// cache miss.
func (c *Client) GetCachedBalance(ctx context.Context, userID string) (*models.UserBalance, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf("balance:%s", userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var balance models.UserBalance
	if err := json.Unmarshal(raw, &balance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached balance: %w", err)
	}
	return &balance, nil
}

// InvalidateBalance drops a user's cached balance.
func (c *Client) InvalidateBalance(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("balance:%s", userID)).Err()
}
