package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/obikwelu/resulthawk/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	Close() error

	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)

	SetProviderSettings(ctx context.Context, settings *models.ProviderSettings, ttl time.Duration) error
	GetProviderSettings(ctx context.Context, key string) (*models.ProviderSettings, bool, error)

	ClaimRefund(ctx context.Context, reference string, ttl time.Duration) (bool, error)
	ReleaseRefund(ctx context.Context, reference string) error
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, JobStatusKey(jobID), status, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, JobStatusKey(jobID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) SetProviderSettings(ctx context.Context, settings *models.ProviderSettings, ttl time.Duration) error {
	b, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, ProviderSettingsKey(settings.Key), b, ttl).Err()
}

func (c *RedisCache) GetProviderSettings(ctx context.Context, key string) (*models.ProviderSettings, bool, error) {
	val, err := c.client.Get(ctx, ProviderSettingsKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var settings models.ProviderSettings
	if err := json.Unmarshal(val, &settings); err != nil {
		return nil, false, err
	}
	return &settings, true, nil
}

// ClaimRefund performs a SETNX on the refund reference. A false return means
// another caller already claimed it. This is a cheap local duplicate
// suppressor only; the wallet service's idempotency-by-reference is the
// actual guarantee.
func (c *RedisCache) ClaimRefund(ctx context.Context, reference string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, RefundKey(reference), "1", ttl).Result()
}

// ReleaseRefund drops a claim so a failed refund can be retried.
func (c *RedisCache) ReleaseRefund(ctx context.Context, reference string) error {
	return c.client.Del(ctx, RefundKey(reference)).Err()
}
