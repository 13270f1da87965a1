package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"todo-service/internal/config"
	"todo-service/internal/models"
	"todo-service/pkg/logger"
)

const (
	todosCacheKey   = "todos:all"
	todosVersionKey = "todos:version"
)

// Cache is a read-through cache for the full todo list. A nil *Cache is a
// valid, disabled cache.
//
// Snapshots are stored under a key that embeds the current list version.
// Invalidation bumps the version instead of deleting, so a reader that loaded
// rows before a write can only store its snapshot under the old version,
// which nobody reads anymore.
//
// A failed bump marks the cache stale: reads miss until the bump is replayed,
// so a write is never hidden behind a snapshot taken before it.
type Cache struct {
	client *redis.Client
	ttl    time.Duration

	retryMu sync.Mutex
	pending atomic.Int64 // failed bumps not yet replayed
}

// New connects to REDIS_URL. It returns (nil, nil) when no URL is configured.
func New(ctx context.Context, cfg *config.Config) (*Cache, error) {
	if cfg.RedisURL == "" {
		logger.Info(ctx, "Redis cache disabled (REDIS_URL not set)")
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = cfg.RedisPoolSize
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	logger.Info(ctx, "Redis client initialized", "pool_size", cfg.RedisPoolSize)
	return NewWithClient(client, time.Duration(cfg.CacheTTL)*time.Second), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// SnapshotKey returns the key holding the list snapshot for a version.
func SnapshotKey(version int64) string {
	return todosCacheKey + ":v" + strconv.FormatInt(version, 10)
}

// Version returns the current list version. A missing counter is version 0.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, errors.New("cache disabled")
	}
	v, err := c.client.Get(ctx, todosVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// GetTodos reads the todos list for the current version. On a miss it returns
// the version the caller should store a fresh snapshot under; ok is false and
// version is -1 when the cache is unusable.
func (c *Cache) GetTodos(ctx context.Context) (todos []models.Todo, version int64, ok bool) {
	if c == nil {
		return nil, -1, false
	}
	if c.pending.Load() > 0 && !c.retryInvalidate(ctx) {
		return nil, -1, false
	}
	version, err := c.Version(ctx)
	if err != nil {
		logger.Debug(ctx, "Redis get todos version failed", "error", err)
		return nil, -1, false
	}
	b, err := c.client.Get(ctx, SnapshotKey(version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, false
	}
	if err != nil {
		logger.Debug(ctx, "Redis get todos failed", "error", err)
		return nil, -1, false
	}
	if err := json.Unmarshal(b, &todos); err != nil {
		logger.Debug(ctx, "Redis unmarshal todos failed", "error", err)
		return nil, version, false
	}
	if todos == nil {
		todos = []models.Todo{}
	}
	return todos, version, true
}

// SetTodos stores the todos list under version with the configured TTL.
// Negative versions are ignored.
func (c *Cache) SetTodos(ctx context.Context, version int64, todos []models.Todo) {
	if c == nil || version < 0 {
		return
	}
	b, err := json.Marshal(todos)
	if err != nil {
		logger.Debug(ctx, "Marshal todos for cache failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, SnapshotKey(version), b, c.ttl).Err(); err != nil {
		logger.Debug(ctx, "Redis set todos failed", "error", err)
	}
}

// InvalidateTodos bumps the list version so the next read goes to the store.
// On failure reads miss until a later read replays the bump.
func (c *Cache) InvalidateTodos(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.client.Incr(ctx, todosVersionKey).Err(); err != nil {
		c.pending.Add(1)
		return err
	}
	return nil
}

// retryInvalidate replays failed bumps with one INCR. Only failures counted
// before the INCR are cleared; later ones keep the cache stale.
func (c *Cache) retryInvalidate(ctx context.Context) bool {
	c.retryMu.Lock()
	defer c.retryMu.Unlock()
	n := c.pending.Load()
	if n == 0 {
		return true
	}
	if err := c.client.Incr(ctx, todosVersionKey).Err(); err != nil {
		logger.Debug(ctx, "Redis retry invalidate todos failed", "error", err)
		return false
	}
	c.pending.Add(-n)
	logger.Info(ctx, "Pending todo list invalidation applied", "failed_bumps", n)
	return true
}

// Ping checks the Redis connection. A disabled cache is always healthy.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
