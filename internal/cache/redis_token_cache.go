package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisTokenCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTokenCache(rdb *redis.Client, ttl time.Duration) *RedisTokenCache {
	return &RedisTokenCache{rdb: rdb, ttl: ttl}
}

var _ TokenCache = (*RedisTokenCache)(nil)

func tokenKey(customerID string) string {
	return fmt.Sprintf("customer:token:%s", customerID)
}

func (c *RedisTokenCache) GetToken(ctx context.Context, customerID string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, tokenKey(customerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisTokenCache) StoreToken(ctx context.Context, customerID, token string) error {
	return c.rdb.Set(ctx, tokenKey(customerID), token, c.ttl).Err()
}
