package core

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the usage document in a single Redis key. SET
// replaces the whole value, which gives the same replace-document
// semantics as the Hub backend.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "usage:document"
	}
	return &RedisStore{
		client: client,
		key:    key,
	}
}

func (s *RedisStore) Load(ctx context.Context) ([]UsageRecord, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}
	return DecodeDocument(val)
}

func (s *RedisStore) Publish(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("redis publish: read artifact: %w", err)
	}
	if err := s.client.Set(ctx, s.key, content, 0).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
