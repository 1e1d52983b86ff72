package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/david/opportunity-matcher/internal/matching"
	"github.com/david/opportunity-matcher/internal/models"
)

const (
	keyPrefix  = "matcher:candidates:"
	DefaultTTL = 10 * time.Minute
)

// CandidateCache serves candidate lists from Redis and falls through to the
// wrapped source on a miss. Redis failures never fail a lookup.
type CandidateCache struct {
	client *redis.Client
	source matching.CandidateSource
	ttl    time.Duration
	log    *zap.Logger
}

func NewCandidateCache(client *redis.Client, source matching.CandidateSource, ttl time.Duration, log *zap.Logger) *CandidateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CandidateCache{client: client, source: source, ttl: ttl, log: log}
}

func (c *CandidateCache) ListCandidates(ctx context.Context, q models.CandidateQuery) ([]models.Opportunity, error) {
	key, err := cacheKey(q)
	if err != nil {
		return nil, err
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []models.Opportunity
		jsonErr := json.Unmarshal(raw, &cached)
		if jsonErr == nil {
			c.log.Debug("candidate cache hit", zap.String("key", key), zap.Int("count", len(cached)))
			return cached, nil
		}
		c.log.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(jsonErr))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("candidate cache read failed", zap.Error(err))
	}

	opps, err := c.source.ListCandidates(ctx, q)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(opps)
	if err != nil {
		c.log.Warn("candidate cache encode failed", zap.Error(err))
		return opps, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("candidate cache write failed", zap.Error(err))
	}
	return opps, nil
}

// Invalidate drops every cached candidate list. Ingest calls it after a run
// that changed stored opportunities.
func (c *CandidateCache) Invalidate(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete cache keys: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func cacheKey(q models.CandidateQuery) (string, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encode candidate query: %w", err)
	}
	sum := sha256.Sum256(payload)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}
