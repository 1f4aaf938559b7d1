package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/storage"
)

// AlertEventStore is an in-memory implementation of storage.AlertEventStore.
type AlertEventStore struct {
	mu       sync.RWMutex
	byID     map[string]*models.AlertEvent
	byWallet map[string]map[string]string // wallet id -> snapshot id -> event id
}

// NewAlertEventStore creates a new in-memory alert event store.
func NewAlertEventStore() *AlertEventStore {
	return &AlertEventStore{
		byID:     make(map[string]*models.AlertEvent),
		byWallet: make(map[string]map[string]string),
	}
}

// Exists reports whether the wallet already has an event for the snapshot.
func (s *AlertEventStore) Exists(_ context.Context, walletID, snapshotID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byWallet[walletID][snapshotID]
	return ok, nil
}

// Create stores a new event. Returns ErrDuplicateKey if the (wallet, snapshot) pair exists.
func (s *AlertEventStore) Create(_ context.Context, e *models.AlertEvent) error {
	if e == nil || e.WalletID == "" || e.SnapshotID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byWallet[e.WalletID][e.SnapshotID]; ok {
		return storage.ErrDuplicateKey
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	eventCopy := *e
	eventCopy.Sent = false
	s.byID[e.ID] = &eventCopy
	if s.byWallet[e.WalletID] == nil {
		s.byWallet[e.WalletID] = make(map[string]string)
	}
	s.byWallet[e.WalletID][e.SnapshotID] = e.ID
	return nil
}

// MarkDelivery records a delivery attempt on the existing event.
func (s *AlertEventStore) MarkDelivery(_ context.Context, id string, sent bool, lastError *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	e.Sent = sent
	e.LastError = lastError
	if sent {
		t := at.UTC()
		e.SentAt = &t
	}
	return nil
}

// ListByWallet returns the most recent events of a wallet.
func (s *AlertEventStore) ListByWallet(_ context.Context, walletID string, limit int) ([]*models.AlertEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AlertEvent
	for _, id := range s.byWallet[walletID] {
		eventCopy := *s.byID[id]
		out = append(out, &eventCopy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored events.
func (s *AlertEventStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ storage.AlertEventStore = (*AlertEventStore)(nil)
