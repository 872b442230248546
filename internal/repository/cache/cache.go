// Package cache implements the best-effort response and parsed-query cache
// over a key-value store. Faults are logged and ignored; they never change
// the response.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lessonsearch/internal/db"
	"github.com/kailas-cloud/lessonsearch/internal/domain"
	"github.com/kailas-cloud/lessonsearch/internal/metrics"
)

// store is the consumer interface for the cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config holds cache key and TTL settings.
type Config struct {
	KeyPrefix      string
	ResponseTTL    time.Duration
	ParsedQueryTTL time.Duration
}

// Cache stores final responses and parsed queries keyed by normalized
// query + region code.
type Cache struct {
	store  store
	cfg    Config
	logger *zap.Logger
}

// New creates a cache over the given key-value store.
func New(s store, cfg Config, logger *zap.Logger) *Cache {
	return &Cache{store: s, cfg: cfg, logger: logger}
}

// GetResponse returns a cached final response, or false on miss or fault.
func (c *Cache) GetResponse(ctx context.Context, normalizedQuery, regionCode string) (*domain.SearchResponse, bool) {
	var resp domain.SearchResponse
	if !c.get(ctx, c.responseKey(normalizedQuery, regionCode), "response", &resp) {
		return nil, false
	}
	return &resp, true
}

// SetResponse writes a final response entry, best-effort.
func (c *Cache) SetResponse(ctx context.Context, normalizedQuery, regionCode string, resp *domain.SearchResponse) {
	c.set(ctx, c.responseKey(normalizedQuery, regionCode), resp, c.cfg.ResponseTTL)
}

// GetParsedQuery returns a cached parse result, or false on miss or fault.
func (c *Cache) GetParsedQuery(ctx context.Context, normalizedQuery string) (*domain.ParsedQuery, bool) {
	var pq domain.ParsedQuery
	if !c.get(ctx, c.parsedKey(normalizedQuery), "parsed_query", &pq) {
		return nil, false
	}
	return &pq, true
}

// SetParsedQuery writes a parse result entry, best-effort.
func (c *Cache) SetParsedQuery(ctx context.Context, normalizedQuery string, pq *domain.ParsedQuery) {
	c.set(ctx, c.parsedKey(normalizedQuery), pq, c.cfg.ParsedQueryTTL)
}

func (c *Cache) get(ctx context.Context, key, kind string, v any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.CacheTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("Cache entry malformed", zap.String("key", key), zap.Error(err))
		metrics.CacheTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}
	metrics.CacheTotal.WithLabelValues(kind, "hit").Inc()
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) responseKey(normalizedQuery, regionCode string) string {
	return c.cfg.KeyPrefix + "resp:" + hashKey(normalizedQuery+"|"+regionCode)
}

func (c *Cache) parsedKey(normalizedQuery string) string {
	return c.cfg.KeyPrefix + "parsed:" + hashKey(normalizedQuery)
}

func hashKey(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
