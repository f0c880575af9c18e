package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Backend = (*RedisBackend)(nil)

const (
	rateLimitKeyPrefix   = "ratelimit:"
	certificateKeyPrefix = "sns:cert:"
)

type RedisConfig struct {
	Client *redis.Client
}

type RedisBackend struct {
	client     *redis.Client
	rateLimit  int
	rateWindow time.Duration
}

// NewRedisBackend allows rateLimit requests per key in every sliding window.
func NewRedisBackend(cfg RedisConfig, rateLimit int, window time.Duration) (*RedisBackend, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if window <= 0 {
		window = time.Second
	}
	return &RedisBackend{
		client:     cfg.Client,
		rateLimit:  rateLimit,
		rateWindow: window,
	}, nil
}

func (r *RedisBackend) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	params := rateLimitParams{
		window: r.rateWindow,
		limit:  r.rateLimit,
		ttl:    r.rateWindow + time.Second,
	}

	return runRateLimitScript(ctx, r.client, rateLimitKeyPrefix+key, params)
}

func (r *RedisBackend) Get(ctx context.Context, certURL string) ([]byte, error) {
	data, err := r.client.Get(ctx, certificateKeyPrefix+certURL).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return data, nil
}

func (r *RedisBackend) Set(ctx context.Context, certURL string, pem []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, certificateKeyPrefix+certURL, pem, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set certificate: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
