package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/storefront/internal/basket"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 24 * time.Hour,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, owner string) (basket.Basket, error) {
	data, err := r.client.Get(ctx, cacheKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return basket.Basket{}, ErrCacheMiss
	}
	if err != nil {
		return basket.Basket{}, fmt.Errorf("redis get failed: %w", err)
	}

	var b basket.Basket
	if err := json.Unmarshal(data, &b); err != nil {
		return basket.Basket{}, fmt.Errorf("unmarshal basket failed: %w", err)
	}
	return b, nil
}

func (r *RedisCache) Set(ctx context.Context, owner string, b basket.Basket) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal basket failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(60)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(owner), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, owner string) error {
	if err := r.client.Del(ctx, cacheKey(owner)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(owner string) string {
	return fmt.Sprintf("basket:%s", owner)
}
