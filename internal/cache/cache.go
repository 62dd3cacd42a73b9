// Package cache keeps rendered listing pages in Redis. Entries are keyed by
// a generation counter so that a single increment retires every cached page
// after any event changes.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// PageCache stores encoded pages.
type PageCache interface {
	Key(ctx context.Context, parts ...string) (string, error)
	Get(ctx context.Context, key string) (body []byte, contentType string, ok bool)
	Set(ctx context.Context, key, contentType string, body []byte)
	Invalidate(ctx context.Context) error
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and pings it. A nil client and an error are
// returned when the server cannot be reached.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = "eventboard"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) generationKey() string {
	return c.prefix + ":pages:generation"
}

// Key builds the cache key for parts under the current generation.
func (c *RedisCache) Key(ctx context.Context, parts ...string) (string, error) {
	gen, err := c.rdb.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read cache generation: %w", err)
	}
	return pageKey(c.prefix, gen, parts...), nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, string, bool) {
	bs, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, "", false
	}
	contentType, body, ok := decodePayload(bs)
	if !ok {
		c.logger.Warn("discarding corrupt cache entry", "key", key)
		return nil, "", false
	}
	return body, contentType, true
}

func (c *RedisCache) Set(ctx context.Context, key, contentType string, body []byte) {
	if err := c.rdb.Set(ctx, key, encodePayload(contentType, body), c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Invalidate retires every page cached so far.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("bump cache generation: %w", err)
	}
	return nil
}

// Noop is used when no Redis server is configured.
type Noop struct{}

func (Noop) Key(context.Context, ...string) (string, error)     { return "", nil }
func (Noop) Get(context.Context, string) ([]byte, string, bool) { return nil, "", false }
func (Noop) Set(context.Context, string, string, []byte)        {}
func (Noop) Invalidate(context.Context) error                   { return nil }

func pageKey(prefix string, generation int64, parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "\x00")))
	return fmt.Sprintf("%s:pages:%s:%x", prefix, strconv.FormatInt(generation, 10), sum[:])
}

// encodePayload packs [2 bytes content type length][content type][body].
func encodePayload(contentType string, body []byte) []byte {
	out := make([]byte, 2+len(contentType)+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(contentType)))
	copy(out[2:], contentType)
	copy(out[2+len(contentType):], body)
	return out
}

func decodePayload(bs []byte) (string, []byte, bool) {
	if len(bs) < 2 {
		return "", nil, false
	}
	n := int(binary.BigEndian.Uint16(bs[0:2]))
	if 2+n > len(bs) {
		return "", nil, false
	}
	return string(bs[2 : 2+n]), bs[2+n:], true
}
