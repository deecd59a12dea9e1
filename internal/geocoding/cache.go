package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"addressor_backend/internal/addressor"
	"addressor_backend/platform/logger"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "addressor:geocode:reverse"

// CacheRecorder observes cache lookups. Result is one of hit, miss or error.
type CacheRecorder interface {
	ObserveCacheLookup(provider, result string)
}

// NewRedisClient parses url and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Cached stores non-empty reverse geocode answers in Redis and collapses
// concurrent lookups of the same coordinate into one upstream call.
type Cached struct {
	next     Provider
	store    redis.Cmdable
	ttl      time.Duration
	group    singleflight.Group
	recorder CacheRecorder
	log      *logger.Logger
}

func NewCached(next Provider, store redis.Cmdable, ttl time.Duration, recorder CacheRecorder, log *logger.Logger) *Cached {
	if log == nil {
		log = logger.Discard()
	}
	return &Cached{
		next:     next,
		store:    store,
		ttl:      ttl,
		recorder: recorder,
		log:      log,
	}
}

func (c *Cached) Name() string {
	return c.next.Name()
}

func (c *Cached) ReverseGeocode(ctx context.Context, coord addressor.Coordinate) ([]addressor.GeocodeResult, error) {
	key := cacheKey(c.next.Name(), coord)

	if results, ok := c.lookup(ctx, key); ok {
		return results, nil
	}

	// The shared call must outlive any single caller that gives up.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		results, err := c.next.ReverseGeocode(detached, coord)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			c.save(detached, key, results)
		}
		return results, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]addressor.GeocodeResult), nil
	}
}

func (c *Cached) lookup(ctx context.Context, key string) ([]addressor.GeocodeResult, bool) {
	raw, err := c.store.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.observe("miss")
		return nil, false
	}
	if err != nil {
		c.log.Warn("geocode cache read failed", "key", key, "error", err)
		c.observe("error")
		return nil, false
	}

	var results []addressor.GeocodeResult
	if err := json.Unmarshal(raw, &results); err != nil || len(results) == 0 {
		c.log.Warn("geocode cache entry unreadable", "key", key, "error", err)
		c.observe("error")
		return nil, false
	}
	c.observe("hit")
	return results, true
}

func (c *Cached) save(ctx context.Context, key string, results []addressor.GeocodeResult) {
	payload, err := json.Marshal(results)
	if err != nil {
		c.log.Warn("geocode cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("geocode cache write failed", "key", key, "error", err)
	}
}

func (c *Cached) observe(result string) {
	if c.recorder != nil {
		c.recorder.ObserveCacheLookup(c.next.Name(), result)
	}
}

// cacheKey rounds to six decimals, roughly ten centimetres.
func cacheKey(provider string, coord addressor.Coordinate) string {
	return fmt.Sprintf("%s:%s:%.6f,%.6f", cacheKeyPrefix, provider, coord.Lat, coord.Lng)
}
