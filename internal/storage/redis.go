package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "tradealert/pkg/logx"
)

// redisStore lets several monitor instances share one history.
// Retention maps to key TTLs, so Prune has nothing to do.
type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisStore(client, cfg.Redis.Prefix, cfg.Retention, log), nil
}

func newRedisStore(client *redis.Client, prefix string, ttl time.Duration, log logx.Logger) *redisStore {
	return &redisStore{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (s *redisStore) wrapKey(key string) string { return s.prefix + key }

func (s *redisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.wrapKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) Put(ctx context.Context, key string, rec AlertRecord) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, fmt.Errorf("empty key")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	// ttl 0 means no expiry
	return s.client.SetNX(ctx, s.wrapKey(key), b, s.ttl).Result()
}

func (s *redisStore) Prune(ctx context.Context, before time.Time) (int, error) {
	_, _ = ctx, before
	return 0, nil
}

func (s *redisStore) Close() error { return s.client.Close() }
