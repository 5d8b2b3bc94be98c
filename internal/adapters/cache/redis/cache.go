package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "isp-contracts:doc:"

// DocumentCache es una cache de bytes delante del ArtifactStore. Las claves ya son
// direccionadas por fingerprint, así que nunca hay que invalidar: el TTL solo libera memoria.
type DocumentCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New abre el cliente desde una URL redis://. URL vacía = sin cache (nil, nil).
func New(ctx context.Context, url string, ttl time.Duration) (*DocumentCache, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

func NewWithClient(client redis.UniversalClient, ttl time.Duration) *DocumentCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DocumentCache{client: client, ttl: ttl}
}

func (c *DocumentCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *DocumentCache) Set(ctx context.Context, key string, data []byte) error {
	return c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err()
}

// Health para /health.
func (c *DocumentCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *DocumentCache) Close() error {
	return c.client.Close()
}
