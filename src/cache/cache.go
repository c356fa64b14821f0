// Package cache implements the Candle Cache: a process-local, bounded-entry,
// short-TTL map from request fingerprint to a resolved CandleResponse. It is
// an optimisation only — correctness never depends on it.
//
// Grounded on the retrieval pack's marianogappa/crypto-candles cache package
// (other_examples/814845f7_..._cache-cache.go.go), which wraps
// github.com/hashicorp/golang-lru the same way; generalised here from "one
// LRU per candlestick interval" to a single LRU keyed by the full request
// fingerprint, with an explicit insertion-time field for TTL expiry instead
// of relying purely on LRU eviction.
package cache

import (
	"sync"
	"time"

	"strategyexecutor/src/model"

	lru "github.com/hashicorp/golang-lru"
)

const (
	// DefaultMaxEntries matches §4.7/§6's default entry-count bound.
	DefaultMaxEntries = 1000
	// DefaultTTL matches §4.7's default 60s freshness window.
	DefaultTTL = 60 * time.Second
)

type entry struct {
	response  model.CandleResponse
	insertedAt time.Time
	symbol    string
	timeframe string
}

// Cache is a bounded, TTL-expiring store of CandleResponse keyed by request
// fingerprint, guarded by a single global mutex per §5 ("negligible
// contention at expected load").
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache
	ttl time.Duration
}

// New builds a Cache with the given entry-count bound and TTL. Non-positive
// values fall back to the spec defaults.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	backing, _ := lru.New(maxEntries)
	return &Cache{lru: backing, ttl: ttl}
}

// Get returns the cached response for fingerprint, if present and not
// expired. A stale hit is treated as a miss and evicted.
func (c *Cache) Get(fingerprint string) (model.CandleResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.lru.Get(fingerprint)
	if !ok {
		return model.CandleResponse{}, false
	}
	e := raw.(entry)
	if time.Since(e.insertedAt) > c.ttl {
		c.lru.Remove(fingerprint)
		return model.CandleResponse{}, false
	}
	return e.response, true
}

// Put inserts or replaces the cached response for fingerprint, tagging it
// with the (symbol, timeframe) pair it was resolved against so a later
// Invalidate can find it.
func (c *Cache) Put(fingerprint, symbol, timeframe string, response model.CandleResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepExpiredLocked()
	c.lru.Add(fingerprint, entry{
		response:   response,
		insertedAt: time.Now(),
		symbol:     symbol,
		timeframe:  timeframe,
	})
}

// Invalidate evicts every cache entry resolved against (symbol, timeframe),
// per §4.7's "on write to the repository ... all cache entries with that
// pair are invalidated."
func (c *Cache) Invalidate(symbol, timeframe string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.lru.Keys() {
		raw, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		e := raw.(entry)
		if e.symbol == symbol && e.timeframe == timeframe {
			c.lru.Remove(key)
		}
	}
}

// sweepExpiredLocked opportunistically drops expired entries. Called with
// mu already held.
func (c *Cache) sweepExpiredLocked() {
	now := time.Now()
	for _, key := range c.lru.Keys() {
		raw, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		e := raw.(entry)
		if now.Sub(e.insertedAt) > c.ttl {
			c.lru.Remove(key)
		}
	}
}
