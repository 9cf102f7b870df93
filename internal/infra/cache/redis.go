package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"hollowscan/internal/domain"
)

// RedisStore реализует domain.KVStore и domain.Cache через Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedis создаёт хранилище.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get возвращает значение; отсутствие ключа транслируется в domain.ErrNotFound.
func (c *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	return data, err
}

// Set задаёт значение без срока действия.
func (c *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, key, value, 0).Err()
}

// SetTTL задаёт значение со сроком действия.
func (c *RedisStore) SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Once выполняет функцию, если ключ ещё не задан.
func (c *RedisStore) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return err
	}
	return nil
}
