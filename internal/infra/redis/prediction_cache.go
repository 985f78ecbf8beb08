package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.PredictionCache = (*PredictionCache)(nil)

// PredictionCache stores classifier verdicts keyed by content fingerprint.
// URL entries expire after the configured URL TTL; text and voice entries
// use the default TTL (0 = keep until evicted).
type PredictionCache struct {
	client  RedisClient
	textTTL time.Duration
	urlTTL  time.Duration
}

func NewPredictionCache(client RedisClient, textTTL, urlTTL time.Duration) *PredictionCache {
	return &PredictionCache{client: client, textTTL: textTTL, urlTTL: urlTTL}
}

func cacheKey(fingerprint string) string { return "scan:cache:" + fingerprint }

func (c *PredictionCache) Get(ctx context.Context, fingerprint string) (*model.PredictionResult, error) {
	data, err := c.client.Get(ctx, cacheKey(fingerprint))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var res model.PredictionResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *PredictionCache) Store(ctx context.Context, fingerprint string, kind model.JobKind, res *model.PredictionResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	ttl := c.textTTL
	if kind == model.JobURL {
		ttl = c.urlTTL
	}
	return c.client.Set(ctx, cacheKey(fingerprint), data, ttl)
}
