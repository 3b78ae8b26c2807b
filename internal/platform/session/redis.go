package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "portal:session:"

// RedisStore keeps each session in a Redis hash whose expiry is pushed out on
// every access.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisStoreFromURL parses a redis:// URL and connects.
func NewRedisStoreFromURL(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), ttl), nil
}

func (s *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (map[string]string, error) {
	key := s.key(id)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis expire: %w", err)
		}
	}
	return fields, nil
}

func (s *RedisStore) Set(ctx context.Context, id string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	key := s.key(id)
	values := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (s *RedisStore) Replace(ctx context.Context, id string, fields map[string]string, drop []string) error {
	key := s.key(id)
	pipe := s.client.TxPipeline()
	if len(drop) > 0 {
		pipe.HDel(ctx, key, drop...)
	}
	if len(fields) > 0 {
		values := make([]interface{}, 0, len(fields)*2)
		for k, v := range fields {
			values = append(values, k, v)
		}
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis replace: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.key(id), keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
