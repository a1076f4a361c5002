package pricefeed

import (
	"sync"
	"time"

	"github.com/mkearny/contrabot/pkg/logger"
)

// Quote is one cached price observation.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stream" or "rest"
}

// Cache is an in-memory quote cache with a freshness TTL. Stream ticks and
// REST lookups both land here so repeated sizing calls within one cycle
// reuse the same price.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]*Quote
	ttl    time.Duration
	logger *logger.Logger
}

// NewCache creates a quote cache. Quotes older than ttl are treated as
// absent.
func NewCache(ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{
		quotes: make(map[string]*Quote),
		ttl:    ttl,
		logger: log,
	}
}

// Update stores a quote unless a newer one is already cached.
func (c *Cache) Update(q *Quote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.quotes[q.Ticker]; ok && q.Timestamp.Before(existing.Timestamp) {
		return false
	}

	c.quotes[q.Ticker] = q
	return true
}

// Get returns a fresh quote, or false when the ticker is unknown or stale.
func (c *Cache) Get(ticker string) (*Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[ticker]
	if !ok || time.Since(q.Timestamp) > c.ttl {
		return nil, false
	}
	return q, true
}

// Len returns the number of cached quotes, stale included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}

// CleanStale drops quotes past the TTL and returns how many were removed.
func (c *Cache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	count := 0
	for ticker, q := range c.quotes {
		if now.Sub(q.Timestamp) > c.ttl {
			delete(c.quotes, ticker)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Debug("Cleaned stale quotes")
	}
	return count
}
