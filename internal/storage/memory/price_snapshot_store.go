package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/storage"
)

type priceKey struct {
	bucket int64
	unit   string
}

// PriceSnapshotStore is an in-memory implementation of storage.PriceSnapshotStore
// and storage.PriceHistoryStore.
type PriceSnapshotStore struct {
	mu     sync.RWMutex
	prices map[priceKey]models.PriceSnapshot
}

// NewPriceSnapshotStore creates a new in-memory price snapshot store.
func NewPriceSnapshotStore() *PriceSnapshotStore {
	return &PriceSnapshotStore{prices: make(map[priceKey]models.PriceSnapshot)}
}

// Upsert overwrites the price stored for each (bucket, unit).
func (s *PriceSnapshotStore) Upsert(_ context.Context, prices []models.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, p := range prices {
		p.Bucket = p.Bucket.UTC()
		p.CreatedAt = now
		s.prices[priceKey{bucket: p.Bucket.Unix(), unit: p.Unit}] = p
	}
	return nil
}

// Insert mirrors Upsert so the store can stand in for the time-series history.
func (s *PriceSnapshotStore) Insert(ctx context.Context, prices []models.PriceSnapshot) error {
	return s.Upsert(ctx, prices)
}

// GetByBucket returns the prices of a bucket keyed by unit.
func (s *PriceSnapshotStore) GetByBucket(_ context.Context, bucket time.Time, units []string) (map[string]models.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.PriceSnapshot, len(units))
	for _, unit := range units {
		if p, ok := s.prices[priceKey{bucket: bucket.UTC().Unix(), unit: unit}]; ok {
			out[unit] = p
		}
	}
	return out, nil
}

// ListByRange returns prices for units within [from, to] ordered by bucket then unit.
func (s *PriceSnapshotStore) ListByRange(_ context.Context, units []string, from, to time.Time) ([]models.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(units))
	for _, u := range units {
		wanted[u] = true
	}

	var out []models.PriceSnapshot
	for _, p := range s.prices {
		if !wanted[p.Unit] || p.Bucket.Before(from) || p.Bucket.After(to) {
			continue
		}
		out = append(out, p)
	}
	sortPrices(out)
	return out, nil
}

// GetHistory returns one unit's prices within [from, to].
func (s *PriceSnapshotStore) GetHistory(ctx context.Context, unit string, from, to time.Time) ([]models.PriceSnapshot, error) {
	return s.ListByRange(ctx, []string{unit}, from, to)
}

// Count returns the number of stored (bucket, unit) rows.
func (s *PriceSnapshotStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices)
}

func sortPrices(prices []models.PriceSnapshot) {
	sort.Slice(prices, func(i, j int) bool {
		if !prices[i].Bucket.Equal(prices[j].Bucket) {
			return prices[i].Bucket.Before(prices[j].Bucket)
		}
		return prices[i].Unit < prices[j].Unit
	})
}

var (
	_ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)
	_ storage.PriceHistoryStore  = (*PriceSnapshotStore)(nil)
)
