package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by GetJSON when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// RedisRepository wraps the shared redis client.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(addr, password string, db int) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Revoke marks a token id as revoked until it would have expired anyway.
func (r *RedisRepository) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKey(tokenID), 1, ttl).Err()
}

func (r *RedisRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func revokedKey(tokenID string) string {
	return fmt.Sprintf("session:revoked:%s", tokenID)
}
