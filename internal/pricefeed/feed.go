package pricefeed

import (
	"context"
	"time"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/logger"
	"github.com/mkearny/contrabot/pkg/redis"
)

// RESTSource answers one-off price lookups when no streamed quote is fresh.
type RESTSource interface {
	CurrentPrice(ctx context.Context, ticker string, asset contracts.AssetType) (float64, error)
}

// Feed resolves prices in layers: in-memory cache, shared redis cache,
// then the REST data API. Successful REST lookups repopulate both caches.
type Feed struct {
	cache  *Cache
	shared *redis.Cache
	rest   RESTSource
	logger *logger.Logger
}

// NewFeed creates a layered price feed. The redis cache may be backed by a
// disabled client, in which case that layer is a transparent no-op.
func NewFeed(cache *Cache, shared *redis.Cache, rest RESTSource, log *logger.Logger) *Feed {
	return &Feed{
		cache:  cache,
		shared: shared,
		rest:   rest,
		logger: log,
	}
}

// Price returns the freshest known price for the instrument.
func (f *Feed) Price(ctx context.Context, ticker string, asset contracts.AssetType) (float64, error) {
	if q, ok := f.cache.Get(ticker); ok {
		return q.Price, nil
	}

	var cached Quote
	if found, err := f.shared.Get(ctx, redis.QuoteKey(ticker), &cached); err == nil && found {
		if time.Since(cached.Timestamp) <= redis.TTLShort {
			f.cache.Update(&cached)
			return cached.Price, nil
		}
	}

	price, err := f.rest.CurrentPrice(ctx, ticker, asset)
	if err != nil {
		return 0, err
	}

	q := &Quote{Ticker: ticker, Price: price, Timestamp: time.Now(), Source: "rest"}
	f.cache.Update(q)
	if err := f.shared.Set(ctx, redis.QuoteKey(ticker), q, redis.TTLShort); err != nil {
		f.logger.WithError(err).Debug("Shared quote cache write failed")
	}

	return price, nil
}
