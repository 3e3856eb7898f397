// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
	"github.com/LeeDigitalWorks/zapaudit/pkg/notify"

	"github.com/redis/go-redis/v9"
)

func init() {
	Register("redis", func(ctx context.Context, cfg Config) (notify.Publisher, error) {
		return NewRedisPublisher(ctx, cfg.URL, cfg.Redis, cfg.ControlExchange)
	})
}

// RedisPublisher publishes notifications to Redis Pub/Sub.
type RedisPublisher struct {
	client   *redis.Client
	exchange string
}

// NewRedisPublisher connects to addr, which is either host:port or a
// redis:// URL, and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr string, cfg RedisConfig, exchange string) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if exchange == "" {
		exchange = "swift"
	}

	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info().
		Str("addr", redactURL(addr)).
		Str("exchange", exchange).
		Msg("redis publisher connected")

	return &RedisPublisher{
		client:   client,
		exchange: exchange,
	}, nil
}

// Name returns the publisher identifier.
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Channel returns the channel notifications of eventType are published to.
func (p *RedisPublisher) Channel(eventType string) string {
	return p.exchange + ":" + eventType
}

// Publish sends n as JSON to "{exchange}:{event_type}".
func (p *RedisPublisher) Publish(ctx context.Context, n *notify.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	channel := p.Channel(n.EventType)
	result := p.client.Publish(ctx, channel, data)
	if err := result.Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	logger.Debug().
		Str("channel", channel).
		Int64("subscribers", result.Val()).
		Msg("published notification to redis")

	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
