package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cardano-portfolio/internal/models"
)

const snapshotColumns = `id, wallet_id, bucket, created_at, updated_at`

// SnapshotRepository handles hourly wallet snapshot storage
type SnapshotRepository struct {
	db *PostgresDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Upsert creates one snapshot per wallet for the bucket. Re-running within the
// same bucket keeps the original id and only refreshes updated_at.
func (r *SnapshotRepository) Upsert(ctx context.Context, walletIDs []string, bucket time.Time) (map[string]*models.Snapshot, error) {
	out := make(map[string]*models.Snapshot, len(walletIDs))
	if len(walletIDs) == 0 {
		return out, nil
	}

	query := `
		INSERT INTO snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (wallet_id, bucket) DO UPDATE SET
			updated_at = EXCLUDED.updated_at
		RETURNING ` + snapshotColumns

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, walletID := range walletIDs {
		batch.Queue(query, uuid.New().String(), walletID, bucket.UTC(), now)
	}

	results := r.db.Pool().SendBatch(ctx, batch)
	defer results.Close()

	for range walletIDs {
		s, err := scanSnapshot(results.QueryRow())
		if err != nil {
			return out, fmt.Errorf("failed to upsert snapshot: %w", err)
		}
		out[s.WalletID] = s
	}
	return out, nil
}

// UpsertBalances overwrites balances keyed by (snapshot, unit)
func (r *SnapshotRepository) UpsertBalances(ctx context.Context, balances []models.SnapshotBalance) error {
	if len(balances) == 0 {
		return nil
	}

	query := `
		INSERT INTO snapshot_balances (snapshot_id, unit, raw_quantity, decimals)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (snapshot_id, unit) DO UPDATE SET
			raw_quantity = EXCLUDED.raw_quantity,
			decimals = EXCLUDED.decimals`

	batch := &pgx.Batch{}
	for _, b := range balances {
		batch.Queue(query, b.SnapshotID, b.Unit, b.RawQuantity, b.Decimals)
	}

	results := r.db.Pool().SendBatch(ctx, batch)
	defer results.Close()

	for _, b := range balances {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert balance %s/%s: %w", b.SnapshotID, b.Unit, err)
		}
	}
	return nil
}

// GetByWalletAndBucket retrieves the snapshot of a wallet for an exact bucket
func (r *SnapshotRepository) GetByWalletAndBucket(ctx context.Context, walletID string, bucket time.Time) (*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE wallet_id = $1 AND bucket = $2`
	return r.getOne(ctx, query, walletID, bucket.UTC())
}

// GetLatest retrieves the most recent snapshot of a wallet
func (r *SnapshotRepository) GetLatest(ctx context.Context, walletID string) (*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE wallet_id = $1 ORDER BY bucket DESC LIMIT 1`
	return r.getOne(ctx, query, walletID)
}

func (r *SnapshotRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Snapshot, error) {
	s, err := scanSnapshot(r.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return s, nil
}

// ListByWallet returns a wallet's snapshots within [from, to] in chronological order
func (r *SnapshotRepository) ListByWallet(ctx context.Context, walletID string, from, to time.Time) ([]*models.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE wallet_id = $1 AND bucket >= $2 AND bucket <= $3
		ORDER BY bucket ASC`

	rows, err := r.db.Pool().Query(ctx, query, walletID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}

// GetBalances returns balances for many snapshots keyed by snapshot id
func (r *SnapshotRepository) GetBalances(ctx context.Context, snapshotIDs []string) (map[string][]models.SnapshotBalance, error) {
	out := make(map[string][]models.SnapshotBalance, len(snapshotIDs))
	if len(snapshotIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT snapshot_id, unit, raw_quantity::text, decimals
		FROM snapshot_balances
		WHERE snapshot_id = ANY($1::uuid[])
		ORDER BY snapshot_id, unit`, snapshotIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b models.SnapshotBalance
		if err := rows.Scan(&b.SnapshotID, &b.Unit, &b.RawQuantity, &b.Decimals); err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}
		out[b.SnapshotID] = append(out[b.SnapshotID], b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return out, nil
}

func scanSnapshot(row pgx.Row) (*models.Snapshot, error) {
	var s models.Snapshot
	if err := row.Scan(&s.ID, &s.WalletID, &s.Bucket, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Bucket = s.Bucket.UTC()
	return &s, nil
}

var _ SnapshotStore = (*SnapshotRepository)(nil)
