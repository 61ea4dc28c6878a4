package helpers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient initializes a redis client
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisKV writes JSON values to redis.
type RedisKV struct {
	rdb redis.Cmdable
}

func NewRedisKV(rdb redis.Cmdable) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func (k *RedisKV) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return k.rdb.Set(ctx, key, b, ttl).Err()
}

func (k *RedisKV) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return k.rdb.Del(ctx, keys...).Err()
}

func (k *RedisKV) Ping(ctx context.Context) error {
	return k.rdb.Ping(ctx).Err()
}
