package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v7"
)

const scanBatch = 100

// RedisStore keeps each record as a plain string value.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(address, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.WithContext(ctx).Get(key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.WithContext(ctx).Set(key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.WithContext(ctx).Del(key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// List walks the keyspace with SCAN so large databases are not blocked.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	seen := make(map[string]struct{})
	iter := s.client.WithContext(ctx).Scan(0, escapeGlob(prefix)+"*", scanBatch).Iterator()
	for iter.Next() {
		key := iter.Val()
		// SCAN may return a key more than once.
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	return keys, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.WithContext(ctx).Ping().Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
