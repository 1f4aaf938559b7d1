package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/storage"
)

// TargetStore is an in-memory implementation of storage.TargetStore.
type TargetStore struct {
	mu       sync.RWMutex
	byWallet map[string][]models.Target
}

// NewTargetStore creates a new in-memory target store.
func NewTargetStore() *TargetStore {
	return &TargetStore{byWallet: make(map[string][]models.Target)}
}

// Replace swaps the whole target set of a wallet. Returns ErrDuplicateKey and
// leaves the old set in place if a unit repeats.
func (s *TargetStore) Replace(_ context.Context, walletID string, targets []models.Target) error {
	seen := make(map[string]bool, len(targets))
	next := make([]models.Target, 0, len(targets))
	for _, t := range targets {
		if seen[t.Unit] {
			return storage.ErrDuplicateKey
		}
		seen[t.Unit] = true
		t.WalletID = walletID
		next = append(next, t)
	}
	sort.Slice(next, func(i, j int) bool { return next[i].Unit < next[j].Unit })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byWallet[walletID] = next
	return nil
}

// ListByWallet returns the targets of one wallet ordered by unit.
func (s *TargetStore) ListByWallet(_ context.Context, walletID string) ([]models.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Target(nil), s.byWallet[walletID]...), nil
}

// ListByWallets returns targets for many wallets.
func (s *TargetStore) ListByWallets(_ context.Context, walletIDs []string) (map[string][]models.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.Target, len(walletIDs))
	for _, id := range walletIDs {
		if targets, ok := s.byWallet[id]; ok && len(targets) > 0 {
			out[id] = append([]models.Target(nil), targets...)
		}
	}
	return out, nil
}

var _ storage.TargetStore = (*TargetStore)(nil)
