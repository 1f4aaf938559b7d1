// Package memory provides in-memory implementations of the storage interfaces.
// They back the service and worker tests and enforce the same uniqueness keys as
// the Postgres schema.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu        sync.RWMutex
	byID      map[string]*models.Wallet
	byAddress map[string]string // stake address -> id
	order     []string          // insertion order
	now       func() time.Time
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		byID:      make(map[string]*models.Wallet),
		byAddress: make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrReactivate inserts a wallet or reactivates the one with the same stake address.
func (s *WalletStore) CreateOrReactivate(_ context.Context, w *models.Wallet) (*models.Wallet, error) {
	if w == nil || w.StakeAddress == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byAddress[w.StakeAddress]; ok {
		existing := s.byID[id]
		existing.Active = true
		if w.DisplayName != "" {
			existing.DisplayName = w.DisplayName
		}
		existing.UpdatedAt = now
		walletCopy := *existing
		return &walletCopy, nil
	}

	stored := *w
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.Active = true
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.byID[stored.ID] = &stored
	s.byAddress[stored.StakeAddress] = stored.ID
	s.order = append(s.order, stored.ID)

	walletCopy := stored
	return &walletCopy, nil
}

// GetByID retrieves a wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByID(_ context.Context, id string) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	walletCopy := *w
	return &walletCopy, nil
}

// UpdateSettings stores basis, threshold, fee and display name.
func (s *WalletStore) UpdateSettings(_ context.Context, w *models.Wallet) (*models.Wallet, error) {
	if w == nil {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[w.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	existing.ThresholdBasis = w.ThresholdBasis
	existing.DeviationThresholdPctPoints = w.DeviationThresholdPctPoints
	existing.SwapFeeBps = w.SwapFeeBps
	existing.DisplayName = w.DisplayName
	existing.UpdatedAt = s.now()

	walletCopy := *existing
	return &walletCopy, nil
}

// Deactivate soft-deletes a wallet.
func (s *WalletStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	w.Active = false
	w.UpdatedAt = s.now()
	return nil
}

// ListActive returns a page of active wallets in creation order.
func (s *WalletStore) ListActive(_ context.Context, offset, limit int) ([]*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*models.Wallet
	for _, id := range s.order {
		if w := s.byID[id]; w.Active {
			walletCopy := *w
			active = append(active, &walletCopy)
		}
	}

	if offset >= len(active) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(active) {
		end = len(active)
	}
	return active[offset:end], nil
}

var _ storage.WalletStore = (*WalletStore)(nil)
