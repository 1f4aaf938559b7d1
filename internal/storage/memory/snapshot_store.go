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

type snapshotKey struct {
	walletID string
	bucket   int64
}

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu       sync.RWMutex
	byKey    map[snapshotKey]*models.Snapshot
	byID     map[string]*models.Snapshot
	balances map[string]map[string]models.SnapshotBalance // snapshot id -> unit -> balance
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		byKey:    make(map[snapshotKey]*models.Snapshot),
		byID:     make(map[string]*models.Snapshot),
		balances: make(map[string]map[string]models.SnapshotBalance),
	}
}

// Upsert creates one snapshot per wallet for the bucket, keeping ids stable on re-runs.
func (s *SnapshotStore) Upsert(_ context.Context, walletIDs []string, bucket time.Time) (map[string]*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	bucket = bucket.UTC()
	out := make(map[string]*models.Snapshot, len(walletIDs))
	for _, walletID := range walletIDs {
		key := snapshotKey{walletID: walletID, bucket: bucket.Unix()}
		snap, ok := s.byKey[key]
		if ok {
			snap.UpdatedAt = now
		} else {
			snap = &models.Snapshot{
				ID:        uuid.New().String(),
				WalletID:  walletID,
				Bucket:    bucket,
				CreatedAt: now,
				UpdatedAt: now,
			}
			s.byKey[key] = snap
			s.byID[snap.ID] = snap
		}
		snapCopy := *snap
		out[walletID] = &snapCopy
	}
	return out, nil
}

// UpsertBalances overwrites balances keyed by (snapshot, unit).
func (s *SnapshotStore) UpsertBalances(_ context.Context, balances []models.SnapshotBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range balances {
		if _, ok := s.byID[b.SnapshotID]; !ok {
			return storage.ErrNotFound
		}
	}
	for _, b := range balances {
		units, ok := s.balances[b.SnapshotID]
		if !ok {
			units = make(map[string]models.SnapshotBalance)
			s.balances[b.SnapshotID] = units
		}
		units[b.Unit] = b
	}
	return nil
}

// GetByWalletAndBucket returns the snapshot for an exact bucket. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByWalletAndBucket(_ context.Context, walletID string, bucket time.Time) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.byKey[snapshotKey{walletID: walletID, bucket: bucket.UTC().Unix()}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	snapCopy := *snap
	return &snapCopy, nil
}

// GetLatest returns the most recent snapshot of a wallet. Returns ErrNotFound if none.
func (s *SnapshotStore) GetLatest(_ context.Context, walletID string) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Snapshot
	for _, snap := range s.byID {
		if snap.WalletID != walletID {
			continue
		}
		if latest == nil || snap.Bucket.After(latest.Bucket) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	snapCopy := *latest
	return &snapCopy, nil
}

// ListByWallet returns snapshots within [from, to] in chronological order.
func (s *SnapshotStore) ListByWallet(_ context.Context, walletID string, from, to time.Time) ([]*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Snapshot
	for _, snap := range s.byID {
		if snap.WalletID != walletID || snap.Bucket.Before(from) || snap.Bucket.After(to) {
			continue
		}
		snapCopy := *snap
		out = append(out, &snapCopy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out, nil
}

// GetBalances returns balances keyed by snapshot id, each list ordered by unit.
func (s *SnapshotStore) GetBalances(_ context.Context, snapshotIDs []string) (map[string][]models.SnapshotBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.SnapshotBalance, len(snapshotIDs))
	for _, id := range snapshotIDs {
		units, ok := s.balances[id]
		if !ok {
			continue
		}
		list := make([]models.SnapshotBalance, 0, len(units))
		for _, b := range units {
			list = append(list, b)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Unit < list[j].Unit })
		out[id] = list
	}
	return out, nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
