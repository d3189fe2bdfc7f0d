// Package redis opens the shared go-redis client behind the replay set and
// the allow-list registry.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"passport/internal/platform/config"
)

// Client is the process-wide Redis connection.
type Client struct {
	*redis.Client
}

// New connects to cfg.URL and pings it. An empty URL returns nil so callers
// fall back to in-memory stores.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health pings the server; /healthz reports 503 when it fails.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
