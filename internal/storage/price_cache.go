package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cardano-portfolio/internal/pricing"
)

const priceKeyPrefix = "price:"

// PriceCache is the Redis-backed quote cache injected into the price resolver.
// Each quote is stored as JSON under price:<unit> with the cache TTL.
type PriceCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewPriceCache creates a price cache with the given TTL
func NewPriceCache(redis *RedisCache, ttl time.Duration) *PriceCache {
	return &PriceCache{redis: redis, ttl: ttl}
}

func priceKey(unit string) string {
	return priceKeyPrefix + unit
}

// GetQuotes returns cached quotes for the units that have one. Entries that
// fail to decode are treated as misses.
func (p *PriceCache) GetQuotes(ctx context.Context, units []string) (map[string]pricing.Quote, error) {
	keys := make([]string, len(units))
	for i, u := range units {
		keys[i] = priceKey(u)
	}

	raw, err := p.redis.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached quotes: %w", err)
	}

	out := make(map[string]pricing.Quote, len(raw))
	for i, u := range units {
		data, ok := raw[keys[i]]
		if !ok {
			continue
		}
		var q pricing.Quote
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			continue
		}
		out[u] = q
	}
	return out, nil
}

// SetQuotes caches quotes with the configured TTL
func (p *PriceCache) SetQuotes(ctx context.Context, quotes map[string]pricing.Quote) error {
	values := make(map[string][]byte, len(quotes))
	for u, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to marshal quote for %s: %w", u, err)
		}
		values[priceKey(u)] = data
	}
	return p.redis.SetMany(ctx, values, p.ttl)
}

var _ pricing.Cache = (*PriceCache)(nil)
