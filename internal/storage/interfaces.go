package storage

import (
	"context"
	"time"

	"github.com/cardano-portfolio/internal/models"
)

// WalletStore persists wallets. Wallets are never hard-deleted.
type WalletStore interface {
	// CreateOrReactivate inserts a wallet or, if the stake address is known,
	// reactivates it and returns the stored row.
	CreateOrReactivate(ctx context.Context, w *models.Wallet) (*models.Wallet, error)
	GetByID(ctx context.Context, id string) (*models.Wallet, error)
	UpdateSettings(ctx context.Context, w *models.Wallet) (*models.Wallet, error)
	Deactivate(ctx context.Context, id string) error
	// ListActive returns active wallets ordered by creation time
	ListActive(ctx context.Context, offset, limit int) ([]*models.Wallet, error)
}

// TargetStore persists per-wallet target allocations
type TargetStore interface {
	// Replace deletes every target of the wallet and inserts the given set atomically
	Replace(ctx context.Context, walletID string, targets []models.Target) error
	ListByWallet(ctx context.Context, walletID string) ([]models.Target, error)
	ListByWallets(ctx context.Context, walletIDs []string) (map[string][]models.Target, error)
}

// SnapshotStore persists hourly wallet snapshots and their balances
type SnapshotStore interface {
	// Upsert creates or refreshes the snapshot for each (wallet, bucket) and
	// returns the stored rows keyed by wallet id
	Upsert(ctx context.Context, walletIDs []string, bucket time.Time) (map[string]*models.Snapshot, error)
	// UpsertBalances overwrites balances on (snapshot, unit)
	UpsertBalances(ctx context.Context, balances []models.SnapshotBalance) error
	GetByWalletAndBucket(ctx context.Context, walletID string, bucket time.Time) (*models.Snapshot, error)
	GetLatest(ctx context.Context, walletID string) (*models.Snapshot, error)
	ListByWallet(ctx context.Context, walletID string, from, to time.Time) ([]*models.Snapshot, error)
	GetBalances(ctx context.Context, snapshotIDs []string) (map[string][]models.SnapshotBalance, error)
}

// PriceSnapshotStore persists one USD price per (bucket, unit) shared by all wallets
type PriceSnapshotStore interface {
	Upsert(ctx context.Context, prices []models.PriceSnapshot) error
	GetByBucket(ctx context.Context, bucket time.Time, units []string) (map[string]models.PriceSnapshot, error)
	ListByRange(ctx context.Context, units []string, from, to time.Time) ([]models.PriceSnapshot, error)
}

// PriceHistoryStore is the time-series mirror of price snapshots used for charts
type PriceHistoryStore interface {
	Insert(ctx context.Context, prices []models.PriceSnapshot) error
	GetHistory(ctx context.Context, unit string, from, to time.Time) ([]models.PriceSnapshot, error)
}

// AlertEventStore persists alert events, at most one per (wallet, snapshot)
type AlertEventStore interface {
	Exists(ctx context.Context, walletID, snapshotID string) (bool, error)
	// Create returns ErrDuplicateKey if the (wallet, snapshot) pair already has an event
	Create(ctx context.Context, event *models.AlertEvent) error
	MarkDelivery(ctx context.Context, id string, sent bool, lastError *string, at time.Time) error
	ListByWallet(ctx context.Context, walletID string, limit int) ([]*models.AlertEvent, error)
}

// TokenDefinitionStore persists per-unit pricing configuration
type TokenDefinitionStore interface {
	Upsert(ctx context.Context, def *models.TokenDefinition) error
	// SetManualPrice switches a unit to the manual source at a fixed price
	SetManualPrice(ctx context.Context, unit string, priceUSD float64) error
	GetByUnits(ctx context.Context, units []string) (map[string]*models.TokenDefinition, error)
	List(ctx context.Context) ([]*models.TokenDefinition, error)
}
