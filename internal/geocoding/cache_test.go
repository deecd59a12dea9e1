package geocoding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"addressor_backend/internal/addressor"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingProvider struct {
	calls   atomic.Int32
	results []addressor.GeocodeResult
	err     error
	gate    chan struct{}
}

func (p *countingProvider) Name() string { return "fake" }

func (p *countingProvider) ReverseGeocode(ctx context.Context, c addressor.Coordinate) ([]addressor.GeocodeResult, error) {
	p.calls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	return p.results, p.err
}

type cacheLookups struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *cacheLookups) ObserveCacheLookup(provider, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[result]++
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

var pragueResult = addressor.GeocodeResult{
	FormattedAddress: "Vinohradská 12, Praha",
	Components:       []addressor.AddressComponent{{Type: "route", ShortName: "Vinohradská", LongName: "Vinohradská"}},
	Location:         addressor.Coordinate{Lat: 50.0755, Lng: 14.4378},
}

func TestCachedServesSecondLookupFromRedis(t *testing.T) {
	mr, client := newTestRedis(t)
	upstream := &countingProvider{results: []addressor.GeocodeResult{pragueResult}}
	lookups := &cacheLookups{}
	cached := NewCached(upstream, client, time.Hour, lookups, nil)

	coord := addressor.Coordinate{Lat: 50.0755, Lng: 14.4378}
	for i := 0; i < 2; i++ {
		results, err := cached.ReverseGeocode(context.Background(), coord)
		if err != nil {
			t.Fatalf("ReverseGeocode returned error: %v", err)
		}
		if len(results) != 1 || results[0].FormattedAddress != pragueResult.FormattedAddress {
			t.Fatalf("unexpected results %+v", results)
		}
	}

	if upstream.calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", upstream.calls.Load())
	}
	if lookups.counts["miss"] != 1 || lookups.counts["hit"] != 1 {
		t.Fatalf("unexpected lookup counts %v", lookups.counts)
	}
	key := cacheKey("fake", coord)
	if !mr.Exists(key) {
		t.Fatalf("expected key %s to be stored", key)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
}

func TestCachedDoesNotStoreEmptyResults(t *testing.T) {
	mr, client := newTestRedis(t)
	upstream := &countingProvider{results: []addressor.GeocodeResult{}}
	cached := NewCached(upstream, client, time.Hour, nil, nil)

	coord := addressor.Coordinate{Lat: 0.5, Lng: -30}
	if _, err := cached.ReverseGeocode(context.Background(), coord); err != nil {
		t.Fatalf("ReverseGeocode returned error: %v", err)
	}
	if mr.Exists(cacheKey("fake", coord)) {
		t.Fatalf("empty answers must not be cached")
	}
}

func TestCachedPropagatesUpstreamError(t *testing.T) {
	_, client := newTestRedis(t)
	boom := errors.New("upstream down")
	cached := NewCached(&countingProvider{err: boom}, client, time.Hour, nil, nil)

	_, err := cached.ReverseGeocode(context.Background(), addressor.Coordinate{Lat: 1, Lng: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestCachedFallsThroughWhenRedisIsDown(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	upstream := &countingProvider{results: []addressor.GeocodeResult{pragueResult}}
	lookups := &cacheLookups{}
	cached := NewCached(upstream, client, time.Hour, lookups, nil)

	results, err := cached.ReverseGeocode(context.Background(), pragueResult.Location)
	if err != nil {
		t.Fatalf("ReverseGeocode returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected upstream answer, got %d results", len(results))
	}
	if lookups.counts["error"] != 1 {
		t.Fatalf("expected a cache error to be recorded, got %v", lookups.counts)
	}
}

func TestCachedCollapsesConcurrentLookups(t *testing.T) {
	_, client := newTestRedis(t)
	upstream := &countingProvider{results: []addressor.GeocodeResult{pragueResult}, gate: make(chan struct{})}
	cached := NewCached(upstream, client, time.Hour, nil, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.ReverseGeocode(context.Background(), pragueResult.Location)
			errs <- err
		}()
	}

	deadline := time.After(2 * time.Second)
	for upstream.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("upstream was never called")
		case <-time.After(time.Millisecond):
		}
	}
	// let the remaining goroutines reach the singleflight group
	time.Sleep(50 * time.Millisecond)
	close(upstream.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("ReverseGeocode returned error: %v", err)
		}
	}
	if upstream.calls.Load() != 1 {
		t.Fatalf("expected a single upstream call, got %d", upstream.calls.Load())
	}
}

func TestCachedReturnsWhenCallerGivesUp(t *testing.T) {
	_, client := newTestRedis(t)
	upstream := &countingProvider{results: []addressor.GeocodeResult{pragueResult}, gate: make(chan struct{})}
	defer close(upstream.gate)
	cached := NewCached(upstream, client, time.Hour, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cached.ReverseGeocode(ctx, pragueResult.Location)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
