package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"tradequest-go/domain/storage"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

// RedisConfig contains configuration for the Redis store.
type RedisConfig struct {
	URL          string
	Namespace    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// DefaultRedisConfig returns default configuration.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL:          "redis://localhost:6379/0",
		Namespace:    storage.DefaultNamespace,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// RedisStore implements storage.Store on Redis strings holding JSON.
type RedisStore struct {
	client redis.UniversalClient
	keys   keyspace
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := storage.ValidateNamespace(cfg.Namespace); err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB, "namespace", cfg.Namespace)

	store, err := NewRedisStoreWithClient(client, cfg.Namespace, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// NewRedisStoreWithClient wraps an existing client.
// The namespace becomes part of every SCAN pattern, so it must not contain wildcards.
func NewRedisStoreWithClient(client redis.UniversalClient, namespace string, logger *slog.Logger) (*RedisStore, error) {
	if err := storage.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: client,
		keys:   newKeyspace(namespace),
		logger: logger,
	}, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Save writes value under key.
func (s *RedisStore) Save(ctx context.Context, key string, value any) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}

	if err := s.client.Set(ctx, s.keys.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Load decodes the value stored under key into dst.
func (s *RedisStore) Load(ctx context.Context, key string, dst any) (bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return false, err
	}

	data, err := s.client.Get(ctx, s.keys.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("failed to decode value for %s: %w", key, err)
	}
	return true, nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return false, err
	}

	n, err := s.client.Del(ctx, s.keys.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return n > 0, nil
}

// Exists reports whether key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return false, err
	}

	n, err := s.client.Exists(ctx, s.keys.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return n > 0, nil
}

// ListKeys returns keys starting with prefix, sorted.
func (s *RedisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := storage.ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	raw, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(raw))
	for i, k := range raw {
		keys[i] = s.keys.strip(k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every key in the namespace.
func (s *RedisStore) Clear(ctx context.Context) error {
	raw, err := s.scan(ctx, "")
	if err != nil {
		return err
	}

	for start := 0; start < len(raw); start += scanBatch {
		end := min(start+scanBatch, len(raw))
		if err := s.client.Del(ctx, raw[start:end]...).Err(); err != nil {
			return fmt.Errorf("failed to clear keys: %w", err)
		}
	}

	s.logger.Info("Store cleared", "keys", len(raw))
	return nil
}

func (s *RedisStore) scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.keys.pattern(prefix), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return keys, nil
}

// Ensure RedisStore implements storage.Store
var _ storage.Store = (*RedisStore)(nil)
