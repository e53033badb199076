package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	platformerrors "refract-server-go/internal/platform/errors"
)

// RedisConfig connects the redis result store.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisStore caches rendered results in redis. Each entry is a hash with
// the payload and its content type so both survive together; expiry uses
// redis TTLs.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, platformerrors.New(platformerrors.KindConfig, "storage.redis",
			"redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "storage.redis",
			"redis ping failed", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "result:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

// NewRedisStoreWithClient wires an existing client, for tests.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "result:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (Blob, error) {
	const op = "storage.redis"

	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return Blob{}, platformerrors.Wrap(platformerrors.KindStorage, op,
			"reading entry", err)
	}
	data, ok := fields["data"]
	if !ok {
		return Blob{}, fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	}
	return Blob{Data: []byte(data), ContentType: fields["content_type"]}, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, blob Blob, ttl time.Duration) error {
	const op = "storage.redis"

	if ttl <= 0 {
		ttl = s.ttl
	}
	rkey := s.key(key)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, rkey, "data", blob.Data, "content_type", blob.ContentType)
	pipe.Expire(ctx, rkey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, op,
			"writing entry", err)
	}
	return nil
}
