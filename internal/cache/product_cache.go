package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"kidsbook/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ProductCache is a cache-aside layer over product reads. Entries carry a
// short TTL; stock-mutating commits also invalidate eagerly, so a stale
// stock figure is only ever displayed, never trusted by the ledger.
// A nil *ProductCache is valid and disables caching.
type ProductCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a product cache backed by the given Redis client.
func New(rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *ProductCache {
	return &ProductCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "product-cache").Logger(),
	}
}

func key(id uuid.UUID) string {
	return "product:" + id.String()
}

// Get returns the cached product, or nil on miss or any cache failure.
func (c *ProductCache) Get(ctx context.Context, id uuid.UUID) *model.Product {
	if c == nil {
		return nil
	}

	raw, err := c.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("product_id", id.String()).Msg("cache read failed")
		}
		return nil
	}

	var p model.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.Warn().Err(err).Str("product_id", id.String()).Msg("cache entry corrupt, dropping")
		c.rdb.Del(ctx, key(id))
		return nil
	}
	return &p
}

// Set stores the product, best effort.
func (c *ProductCache) Set(ctx context.Context, p *model.Product) {
	if c == nil || p == nil {
		return
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(p.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("product_id", p.ID.String()).Msg("cache write failed")
	}
}

// Invalidate drops the cached entry after a stock or status mutation.
func (c *ProductCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, key(id)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("product_id", id.String()).Msg("cache invalidation failed")
	}
}
