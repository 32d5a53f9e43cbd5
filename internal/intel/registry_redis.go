package intel

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis-backed registry.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

// DefaultRedisConfig returns sane client defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		KeyPrefix:    "honeytrap:scammer:",
	}
}

// RedisRegistry persists scammer identifiers in Redis hashes so multiple
// honeypot instances share one view of repeat offenders.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry connects to Redis and verifies the connection.
func NewRedisRegistry(cfg RedisConfig) (*RedisRegistry, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("intel: connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "honeytrap:scammer:"
	}
	return &RedisRegistry{client: client, prefix: prefix}, nil
}

func (r *RedisRegistry) key(id Identifier) string {
	return r.prefix + normalizeKey(id)
}

// indexKey is the set of all tracked identifier keys, kept for Count.
func (r *RedisRegistry) indexKey() string {
	return r.prefix + "_index"
}

func (r *RedisRegistry) Record(ctx context.Context, id Identifier) error {
	key := r.key(id)
	now := time.Now().UTC()

	pipe := r.client.TxPipeline()
	pipe.HSetNX(ctx, key, "first_seen", now.Format(time.RFC3339))
	pipe.HSetNX(ctx, key, "type", string(id.Type))
	pipe.HSetNX(ctx, key, "value", id.Value)
	pipe.HSet(ctx, key, "last_seen", now.Format(time.RFC3339))
	pipe.HIncrBy(ctx, key, "session_count", 1)
	pipe.SAdd(ctx, r.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("intel: record identifier: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, id Identifier) (*Entry, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("intel: lookup identifier: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	entry := &Entry{Identifier: id}
	if v, ok := fields["first_seen"]; ok {
		entry.FirstSeen, _ = time.Parse(time.RFC3339, v)
	}
	if v, ok := fields["last_seen"]; ok {
		entry.LastSeen, _ = time.Parse(time.RFC3339, v)
	}
	if v, ok := fields["session_count"]; ok {
		entry.SessionCount, _ = strconv.Atoi(v)
	}
	return entry, nil
}

func (r *RedisRegistry) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("intel: count identifiers: %w", err)
	}
	return int(n), nil
}

// Close releases the Redis connection.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
