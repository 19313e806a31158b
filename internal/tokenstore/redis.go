package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces token keys in Redis.
const KeyPrefix = "armp:token:"

// Key returns the Redis key holding the token of client sid.
func Key(sid string) string {
	return KeyPrefix + sid
}

// RedisStore keeps one client's token under Key(sid).
type RedisStore struct {
	rdb        *redis.Client
	key        string
	defaultTTL time.Duration
	now        func() time.Time
}

// NewRedisStore returns a store for client sid. defaultTTL applies to tokens
// without a usable exp claim.
func NewRedisStore(rdb *redis.Client, sid string, defaultTTL time.Duration) *RedisStore {
	return &RedisStore{
		rdb:        rdb,
		key:        Key(sid),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	token, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	ttl := TTL(token, s.defaultTTL, s.now())
	if err := s.rdb.Set(ctx, s.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}
