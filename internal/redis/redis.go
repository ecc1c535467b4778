// Package redis backs the chat collection and the change relay with a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"localchat/internal/config"

	redis "github.com/redis/go-redis/v9"
)

var errNotConnected = errors.New("redis client not initialized")

// Client stores string values without expiry and carries pub/sub traffic.
type Client struct {
	inner *redis.Client
}

// Dial connects to the server described by cfg.Redis and pings it.
func Dial(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	inner := redis.NewClient(&redis.Options{
		Addr:     address(cfg.Redis),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := inner.Ping(ctx).Err(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("ping redis %s: %w", inner.Options().Addr, err)
	}
	return &Client{inner: inner}, nil
}

func address(rc config.RedisConfig) string {
	host, port := rc.Host, rc.Port
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Read returns the value under key; a missing key is reported as found=false.
func (c *Client) Read(ctx context.Context, key string) (string, bool, error) {
	if c == nil || c.inner == nil {
		return "", false, errNotConnected
	}
	value, err := c.inner.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Write overwrites key. The collection never expires.
func (c *Client) Write(ctx context.Context, key, value string) error {
	if c == nil || c.inner == nil {
		return errNotConnected
	}
	if err := c.inner.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Client) Remove(ctx context.Context, key string) error {
	if c == nil || c.inner == nil {
		return errNotConnected
	}
	if err := c.inner.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Publish sends payload to every subscriber of channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if c == nil || c.inner == nil {
		return errNotConnected
	}
	return c.inner.Publish(ctx, channel, payload).Err()
}

// Subscribe returns once the subscription to channel is confirmed by the server.
func (c *Client) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	if c == nil || c.inner == nil {
		return nil, errNotConnected
	}
	pubsub := c.inner.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return pubsub, nil
}

func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes the go-redis client for administrative calls.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
