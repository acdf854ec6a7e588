package querycache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/searchpool"
)

// Redis is a Cache backed by a Redis instance, shared across processes.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed cache. A non-positive ttl uses DefaultTTL.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// Get returns cached results if the key exists; Redis expiry enforces TTL.
func (r *Redis) Get(ctx context.Context, platform model.Platform, country, query string) ([]searchpool.Result, bool, error) {
	key := "querycache:" + Key(platform, country, query)

	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "querycache: redis get")
	}

	var results []searchpool.Result
	if err := json.Unmarshal(raw, &results); err != nil {
		// Treat a corrupt entry as a miss; the caller will overwrite it.
		return nil, false, nil
	}
	return results, true, nil
}

// Put stores results with the configured TTL. Last write wins.
func (r *Redis) Put(ctx context.Context, platform model.Platform, country, query string, results []searchpool.Result) error {
	key := "querycache:" + Key(platform, country, query)

	raw, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "querycache: marshal results")
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		return eris.Wrap(err, "querycache: redis set")
	}
	return nil
}
