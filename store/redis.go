package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/types"
)

const taskKeyPrefix = "snowgate:task:"

// RedisConfig configures the Redis task archive.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`

	// TTL bounds how long terminal records stay pollable. Zero keeps the
	// default of one hour.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisStore archives task records in Redis. Terminal records expire
// after the configured TTL; in-flight records never expire.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrConfig, "redis unreachable at "+cfg.Addr).WithCause(err)
	}
	return &RedisStore{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.With(zap.String("component", "redis_store")),
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if rec.State.Terminal() {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, taskKeyPrefix+rec.TaskID, data, ttl).Err(); err != nil {
		return types.NewError(types.ErrUpstream, "saving task record").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	data, err := s.client.Get(ctx, taskKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, notFound(id)
	}
	if err != nil {
		return Record{}, types.NewError(types.ErrUpstream, "loading task record").WithCause(err).WithRetryable(true)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, types.NewError(types.ErrUpstream, "decoding task record").WithCause(err)
	}
	return rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, taskKeyPrefix+id).Err(); err != nil {
		return types.NewError(types.ErrUpstream, "deleting task record").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
