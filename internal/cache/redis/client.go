// Package redis caches derived, recomputable values such as the due
// summary. Every key lives under a namespace derived from the database path
// so several knowledge bases can share one server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/torenunez/lerni/pkg/config"
	"github.com/torenunez/lerni/pkg/logger"
	"github.com/torenunez/lerni/pkg/utils"
)

type Client struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

func NewClient(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, dbPath string) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{
		client:    client,
		namespace: Namespace(dbPath),
		ttl:       ttl,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Namespace is the key prefix for one database file.
func Namespace(dbPath string) string {
	return "lerni:" + utils.Fingerprint(dbPath)
}

func (c *Client) key(name string) string {
	return c.namespace + ":" + name
}

// SetJSON stores v under name for the configured TTL.
func (c *Client) SetJSON(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, c.key(name), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache value: %w", err)
	}

	logger.Debug("Cache value stored", zap.String("key", name), zap.Duration("ttl", c.ttl))
	return nil
}

// GetJSON loads name into v and reports whether it was present.
func (c *Client) GetJSON(ctx context.Context, name string, v any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	logger.Debug("Cache hit", zap.String("key", name))
	return true, nil
}

// InvalidateDue drops every cached due summary of this database.
func (c *Client) InvalidateDue(ctx context.Context) error {
	return c.invalidate(ctx, DueKeyPattern)
}

func (c *Client) invalidate(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, c.key(pattern), 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Debug("Cache invalidated", zap.String("pattern", pattern), zap.Int("keys", deleted))
	return nil
}

// DueKeyPattern matches every cached due summary, one per lookahead window.
const DueKeyPattern = "due:*"
