package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/storage"
	"github.com/cardano-portfolio/internal/types"
)

// TokenDefinitionStore is an in-memory implementation of storage.TokenDefinitionStore.
type TokenDefinitionStore struct {
	mu     sync.RWMutex
	byUnit map[string]*models.TokenDefinition
}

// NewTokenDefinitionStore creates a new in-memory token definition store.
func NewTokenDefinitionStore() *TokenDefinitionStore {
	return &TokenDefinitionStore{byUnit: make(map[string]*models.TokenDefinition)}
}

// Upsert inserts or replaces the definition of a unit.
func (s *TokenDefinitionStore) Upsert(_ context.Context, d *models.TokenDefinition) error {
	if d == nil || d.Unit == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	defCopy := *d
	defCopy.UpdatedAt = time.Now().UTC()
	s.byUnit[d.Unit] = &defCopy
	return nil
}

// SetManualPrice switches a unit to the manual source, keeping its other fields.
func (s *TokenDefinitionStore) SetManualPrice(_ context.Context, unit string, priceUSD float64) error {
	if unit == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.byUnit[unit]
	if !ok {
		d = &models.TokenDefinition{Unit: unit}
		s.byUnit[unit] = d
	}
	price := priceUSD
	d.PriceSource = types.SourceManual
	d.ManualPriceUSD = &price
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// GetByUnits returns the definitions that exist for the given units.
func (s *TokenDefinitionStore) GetByUnits(_ context.Context, units []string) (map[string]*models.TokenDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.TokenDefinition, len(units))
	for _, unit := range units {
		if d, ok := s.byUnit[unit]; ok {
			defCopy := *d
			out[unit] = &defCopy
		}
	}
	return out, nil
}

// List returns every definition ordered by unit.
func (s *TokenDefinitionStore) List(_ context.Context) ([]*models.TokenDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TokenDefinition, 0, len(s.byUnit))
	for _, d := range s.byUnit {
		defCopy := *d
		out = append(out, &defCopy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out, nil
}

var _ storage.TokenDefinitionStore = (*TokenDefinitionStore)(nil)
