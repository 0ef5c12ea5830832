package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/models"
)

const defaultChainTTL = 5 * time.Minute

// RedisConfig configures the Redis chain cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// RedisChainCache keeps the latest chain per symbol in Redis, msgpack
// encoded and expiring after TTL.
type RedisChainCache struct {
	client *goredis.Client
	ttl    time.Duration
	prefix string
}

var _ ChainCache = (*RedisChainCache)(nil)

// NewRedisChainCache connects to Redis and pings it.
func NewRedisChainCache(ctx context.Context, cfg RedisConfig) (*RedisChainCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return newRedisChainCache(client, cfg), nil
}

func newRedisChainCache(client *goredis.Client, cfg RedisConfig) *RedisChainCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultChainTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "strategist"
	}
	return &RedisChainCache{client: client, ttl: ttl, prefix: prefix}
}

func (r *RedisChainCache) key(symbol string) string {
	return fmt.Sprintf("%s:chain:%s", r.prefix, strings.ToUpper(symbol))
}

// PutChain stores chain under its symbol.
func (r *RedisChainCache) PutChain(ctx context.Context, chain *models.OptionChain) error {
	data, err := EncodeChain(chain)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(chain.Symbol), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", chain.Symbol, err)
	}
	return nil
}

// GetChain loads the cached chain for symbol.
func (r *RedisChainCache) GetChain(ctx context.Context, symbol string) (*models.OptionChain, error) {
	data, err := r.client.Get(ctx, r.key(symbol)).Bytes()
	if err == goredis.Nil {
		return nil, apperrors.NewDataError("chain", symbol, "not cached", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", symbol, err)
	}
	return DecodeChain(data)
}

// Ping checks the Redis connection.
func (r *RedisChainCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisChainCache) Close() error {
	return r.client.Close()
}

// EncodeChain serialises a chain with msgpack.
func EncodeChain(chain *models.OptionChain) ([]byte, error) {
	data, err := msgpack.Marshal(chain)
	if err != nil {
		return nil, fmt.Errorf("encode chain %s: %w", chain.Symbol, err)
	}
	return data, nil
}

// DecodeChain is the inverse of EncodeChain.
func DecodeChain(data []byte) (*models.OptionChain, error) {
	var chain models.OptionChain
	if err := msgpack.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("decode chain: %w", err)
	}
	return &chain, nil
}

// Tiered reads from the first cache that has a chain and writes to all of
// them, so a Redis front can sit before the SQLite snapshots.
type Tiered []ChainCache

// PutChain writes to every tier and returns the first error.
func (t Tiered) PutChain(ctx context.Context, chain *models.OptionChain) error {
	var first error
	for _, c := range t {
		if err := c.PutChain(ctx, chain); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// GetChain returns the first hit.
func (t Tiered) GetChain(ctx context.Context, symbol string) (*models.OptionChain, error) {
	var lastErr error = apperrors.NewDataError("chain", symbol, "no cache configured", apperrors.ErrDataNotFound)
	for _, c := range t {
		chain, err := c.GetChain(ctx, symbol)
		if err == nil {
			return chain, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
