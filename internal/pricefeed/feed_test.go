package pricefeed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/logger"
	"github.com/mkearny/contrabot/pkg/redis"
)

type fakeRESTSource struct {
	quotes map[string]float64
	calls  int
}

func (f *fakeRESTSource) CurrentPrice(ctx context.Context, ticker string, asset contracts.AssetType) (float64, error) {
	f.calls++
	price, ok := f.quotes[ticker]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", ticker)
	}
	return price, nil
}

func newTestFeed(t *testing.T, rest *fakeRESTSource) (*Feed, *Cache) {
	t.Helper()
	cfg := &config.Config{LogLevel: "error", LogFormat: "json"}
	log := logger.New(cfg)

	client, err := redis.New(cfg) // disabled, transparent no-op layer
	require.NoError(t, err)

	cache := NewCache(time.Minute, log)
	return NewFeed(cache, redis.NewCache(client, "contrabot"), rest, log), cache
}

func TestPriceUsesCachedQuote(t *testing.T) {
	rest := &fakeRESTSource{quotes: map[string]float64{"TSLA": 250}}
	feed, cache := newTestFeed(t, rest)

	cache.Update(&Quote{Ticker: "TSLA", Price: 255, Timestamp: time.Now(), Source: "stream"})

	price, err := feed.Price(context.Background(), "TSLA", contracts.AssetStock)
	require.NoError(t, err)
	assert.Equal(t, 255.0, price, "streamed quote wins over REST")
	assert.Equal(t, 0, rest.calls)
}

func TestPriceFallsBackToREST(t *testing.T) {
	rest := &fakeRESTSource{quotes: map[string]float64{"TSLA": 250}}
	feed, cache := newTestFeed(t, rest)

	price, err := feed.Price(context.Background(), "TSLA", contracts.AssetStock)
	require.NoError(t, err)
	assert.Equal(t, 250.0, price)
	assert.Equal(t, 1, rest.calls)

	// The REST result is now cached.
	q, ok := cache.Get("TSLA")
	require.True(t, ok)
	assert.Equal(t, 250.0, q.Price)
	assert.Equal(t, "rest", q.Source)

	_, err = feed.Price(context.Background(), "TSLA", contracts.AssetStock)
	require.NoError(t, err)
	assert.Equal(t, 1, rest.calls, "second lookup served from cache")
}

func TestPriceIgnoresStaleQuote(t *testing.T) {
	rest := &fakeRESTSource{quotes: map[string]float64{"TSLA": 250}}
	feed, cache := newTestFeed(t, rest)

	cache.Update(&Quote{Ticker: "TSLA", Price: 999, Timestamp: time.Now().Add(-2 * time.Minute), Source: "stream"})

	price, err := feed.Price(context.Background(), "TSLA", contracts.AssetStock)
	require.NoError(t, err)
	assert.Equal(t, 250.0, price)
}

func TestPricePropagatesLookupFailure(t *testing.T) {
	feed, _ := newTestFeed(t, &fakeRESTSource{quotes: map[string]float64{}})

	_, err := feed.Price(context.Background(), "ZZZZ", contracts.AssetStock)
	assert.Error(t, err)
}

func TestCacheUpdateKeepsNewest(t *testing.T) {
	cfg := &config.Config{LogLevel: "error", LogFormat: "json"}
	cache := NewCache(time.Minute, logger.New(cfg))

	now := time.Now()
	assert.True(t, cache.Update(&Quote{Ticker: "TSLA", Price: 250, Timestamp: now}))
	assert.False(t, cache.Update(&Quote{Ticker: "TSLA", Price: 240, Timestamp: now.Add(-time.Second)}))

	q, ok := cache.Get("TSLA")
	require.True(t, ok)
	assert.Equal(t, 250.0, q.Price)
}

func TestCacheCleanStale(t *testing.T) {
	cfg := &config.Config{LogLevel: "error", LogFormat: "json"}
	cache := NewCache(time.Minute, logger.New(cfg))

	cache.Update(&Quote{Ticker: "OLD", Price: 1, Timestamp: time.Now().Add(-2 * time.Minute)})
	cache.Update(&Quote{Ticker: "NEW", Price: 2, Timestamp: time.Now()})

	assert.Equal(t, 1, cache.CleanStale())
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("NEW")
	assert.True(t, ok)
}
