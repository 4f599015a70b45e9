package kv

import (
	"context"
	"log/slog"
	"time"

	"github.com/coursepilot/coursepilot/pkg/utils"
	"github.com/redis/go-redis/v9"
)

// RedisStore backs the session cache with Redis so multiple server instances
// can share session state. Operations use short internal timeouts; failures
// degrade to absence on read and are logged on remove, matching the Store
// contract.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

const redisOpTimeout = 3 * time.Second

// NewRedisStore connects to the given address and verifies the connection.
func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, logger: utils.GetLogger()}, nil
}

func (s *RedisStore) Read(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (s *RedisStore) Write(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	err := s.client.Set(ctx, key, value, 0).Err()
	if err != nil && isRedisOOM(err) {
		return ErrQuotaExceeded
	}
	return err
}

func (s *RedisStore) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("Failed to remove redis key", "key", key, "error", err)
	}
}

func (s *RedisStore) Keys(prefix string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("Redis key scan failed", "prefix", prefix, "error", err)
	}
	return keys
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func isRedisOOM(err error) bool {
	// Redis rejects writes over maxmemory with an "OOM command not allowed" error.
	return err != nil && len(err.Error()) >= 3 && err.Error()[:3] == "OOM"
}
