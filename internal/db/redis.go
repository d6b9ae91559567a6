package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func NewRedisClient(ctx context.Context, url string, log *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info("redis connected", zap.String("addr", opts.Addr))
	return client, nil
}

// KeyStore adapts a redis client to the small key/value surface the
// idempotency guard needs.
type KeyStore struct {
	client *redis.Client
	prefix string
}

func NewKeyStore(client *redis.Client, prefix string) *KeyStore {
	return &KeyStore{client: client, prefix: prefix}
}

func (s *KeyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("%s:idempotency:%s:%s", s.prefix, scope, id)
}

func (s *KeyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *KeyStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Get returns redis.Nil when key is absent.
func (s *KeyStore) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

// LockKey names a worker lock.
func (s *KeyStore) LockKey(name string) string {
	return fmt.Sprintf("%s:lock:%s", s.prefix, name)
}
