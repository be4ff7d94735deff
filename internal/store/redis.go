package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"memobridge/internal/domain"
)

const redisKeyPrefix = "memobridge:album:"

// RedisStore keeps album state in Redis using native key expiry, so several
// bridge instances can share it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using a redis:// URL.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, albumID string) (*domain.AlbumState, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+albumID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state domain.AlbumState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode album state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Put(ctx context.Context, albumID string, state domain.AlbumState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+albumID, data, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
