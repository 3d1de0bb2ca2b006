// Package store exposes an instrumented key-value facade over Redis.
// Values are stored under freshly generated UUID keys; every store call
// is counted and recorded through the instrument middleware chain.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/instrument"
	"github.com/oriys/pulsar/internal/metrics"
)

// OpStore is the tracking name under which Store calls are counted and
// recorded.
const OpStore = "cache:store"

// ErrNotFound is returned when a key does not exist in the backend.
var ErrNotFound = errors.New("store: key not found")

// ConvertFunc turns the raw stored bytes into a caller-chosen type.
// It is only invoked when the key exists; a conversion failure
// propagates unchanged to the caller.
type ConvertFunc func(data []byte) (any, error)

// Cache is the instrumented facade. All methods delegate durability,
// atomicity, and expiration to the Redis backend; the facade adds no
// coordination of its own.
type Cache struct {
	client  *redis.Client
	storeOp instrument.Op
	metrics *metrics.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics attaches prometheus collectors to the facade.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New connects to Redis and flushes the database, so every facade
// lifetime starts from an empty backend. The flush destroys any
// pre-existing data in the shared database.
func New(ctx context.Context, cfg config.RedisConfig, opts ...Option) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("flushdb: %w", err)
	}

	return Attach(client, opts...), nil
}

// Attach wraps an existing client without flushing. Used where the
// facade must not destroy shared state, and by anything that manages
// the client's lifecycle itself.
func Attach(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{client: client}
	for _, opt := range opts {
		opt(c)
	}
	// History wraps counting, so the recorded output always reflects
	// the already-incremented counter state.
	c.storeOp = instrument.Chain(c.write,
		instrument.CallHistory(client, OpStore),
		instrument.CountCalls(client, OpStore),
	)
	return c
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks backend connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for direct access.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// write is the core store operation the instrumentation chain wraps.
func (c *Cache) write(ctx context.Context, args ...any) (string, error) {
	key := uuid.NewString()
	if err := c.client.Set(ctx, key, args[0], 0).Err(); err != nil {
		return "", fmt.Errorf("set %s: %w", key, err)
	}
	return key, nil
}

// Store saves data under a fresh UUID key and returns the key. data
// must be a string, []byte, int, int64, or float64; other types are
// rejected before any backend write happens.
func (c *Cache) Store(ctx context.Context, data any) (string, error) {
	switch data.(type) {
	case string, []byte, int, int64, float64:
	default:
		return "", fmt.Errorf("store: unsupported type %T", data)
	}
	if c.metrics != nil {
		c.metrics.StoreOps.Inc()
	}
	return c.storeOp(ctx, data)
}

// Get looks up key and returns the stored bytes, passed through fn
// when one is supplied. An absent key returns ErrNotFound and fn is
// never invoked.
func (c *Cache) Get(ctx context.Context, key string, fn ConvertFunc) (any, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if fn == nil {
		return data, nil
	}
	return fn(data)
}

// GetString retrieves key and decodes the value as a UTF-8 string.
func (c *Cache) GetString(ctx context.Context, key string) (string, error) {
	v, err := c.Get(ctx, key, func(data []byte) (any, error) {
		return string(data), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetInt retrieves key and parses the value as a base-10 integer.
// Non-numeric text propagates the parse error.
func (c *Cache) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := c.Get(ctx, key, func(data []byte) (any, error) {
		return strconv.ParseInt(string(data), 10, 64)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// CallCount returns how many times the named operation has run since
// the last flush.
func (c *Cache) CallCount(ctx context.Context, name string) (int64, error) {
	n, err := c.client.Get(ctx, name).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", name, err)
	}
	return n, nil
}
