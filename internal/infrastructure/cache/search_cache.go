// Package cache holds short-lived copies of backend search results so that
// repeated lookups of the same term skip the network.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"go.uber.org/zap"
)

// Page is one cached search answer
type Page struct {
	Options []entity.Option `json:"options"`
	Count   int64           `json:"count"`
}

// SearchCache stores search pages per lookup kind
type SearchCache interface {
	Get(ctx context.Context, kind, term string, page, pageSize int) (*Page, bool)
	Set(ctx context.Context, kind, term string, page, pageSize int, p *Page)
	InvalidateKind(ctx context.Context, kinds ...string)
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(context.Context, string, string, int, int) (*Page, bool) { return nil, false }
func (NopCache) Set(context.Context, string, string, int, int, *Page)        {}
func (NopCache) InvalidateKind(context.Context, ...string)                   {}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and checks the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisSearchCache keeps pages under versioned keys. Invalidating a kind
// bumps its version so older keys are never read again and expire on their
// own.
type RedisSearchCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisSearchCache creates a cache over an existing client
func NewRedisSearchCache(client redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisSearchCache {
	if keyPrefix == "" {
		keyPrefix = "pharmadesk:search:"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSearchCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.Named("search-cache"),
	}
}

func (c *RedisSearchCache) versionKey(kind string) string {
	return c.keyPrefix + kind + ":version"
}

func (c *RedisSearchCache) pageKey(kind string, version int64, term string, page, pageSize int) string {
	return c.keyPrefix + kind + ":v" + strconv.FormatInt(version, 10) +
		":p" + strconv.Itoa(page) + ":n" + strconv.Itoa(pageSize) + ":" + term
}

func (c *RedisSearchCache) version(ctx context.Context, kind string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(kind)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Get returns a cached page. Redis failures count as a miss.
func (c *RedisSearchCache) Get(ctx context.Context, kind, term string, page, pageSize int) (*Page, bool) {
	version, err := c.version(ctx, kind)
	if err != nil {
		c.logger.Warn("reading cache version failed", zap.String("kind", kind), zap.Error(err))
		return nil, false
	}

	raw, err := c.client.Get(ctx, c.pageKey(kind, version, term, page, pageSize)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("reading cached page failed", zap.String("kind", kind), zap.Error(err))
		}
		return nil, false
	}

	var p Page
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.Warn("discarding undecodable cached page", zap.String("kind", kind), zap.Error(err))
		return nil, false
	}
	return &p, true
}

// Set stores a page for the configured TTL
func (c *RedisSearchCache) Set(ctx context.Context, kind, term string, page, pageSize int, p *Page) {
	version, err := c.version(ctx, kind)
	if err != nil {
		c.logger.Warn("reading cache version failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.pageKey(kind, version, term, page, pageSize), data, c.ttl).Err(); err != nil {
		c.logger.Warn("writing cached page failed", zap.String("kind", kind), zap.Error(err))
	}
}

// InvalidateKind makes every cached page of the given kinds unreachable
func (c *RedisSearchCache) InvalidateKind(ctx context.Context, kinds ...string) {
	for _, kind := range kinds {
		if err := c.client.Incr(ctx, c.versionKey(kind)).Err(); err != nil {
			c.logger.Warn("invalidating cache failed", zap.String("kind", kind), zap.Error(err))
		}
	}
}
