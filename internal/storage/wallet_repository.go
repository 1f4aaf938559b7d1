package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/types"
)

const walletColumns = `id, stake_address, display_name, active, threshold_basis,
	deviation_threshold_pct_points, swap_fee_bps, created_at, updated_at`

// WalletRepository handles wallet persistence
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// CreateOrReactivate inserts a new wallet, or reactivates the existing row for the
// same stake address. Settings of an existing wallet are kept; the display name is
// only replaced when a new one is given.
func (r *WalletRepository) CreateOrReactivate(ctx context.Context, w *models.Wallet) (*models.Wallet, error) {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7, $7)
		ON CONFLICT (stake_address) DO UPDATE SET
			active = TRUE,
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE wallets.display_name END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + walletColumns

	row := r.db.Pool().QueryRow(ctx, query,
		w.ID,
		w.StakeAddress,
		w.DisplayName,
		string(w.ThresholdBasis),
		w.DeviationThresholdPctPoints,
		w.SwapFeeBps,
		now,
	)
	stored, err := scanWallet(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert wallet: %w", err)
	}
	return stored, nil
}

// GetByID retrieves a wallet by ID
func (r *WalletRepository) GetByID(ctx context.Context, id string) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

// UpdateSettings stores the alerting settings of a wallet
func (r *WalletRepository) UpdateSettings(ctx context.Context, w *models.Wallet) (*models.Wallet, error) {
	query := `
		UPDATE wallets SET
			threshold_basis = $2,
			deviation_threshold_pct_points = $3,
			swap_fee_bps = $4,
			display_name = $5,
			updated_at = $6
		WHERE id = $1
		RETURNING ` + walletColumns

	row := r.db.Pool().QueryRow(ctx, query,
		w.ID,
		string(w.ThresholdBasis),
		w.DeviationThresholdPctPoints,
		w.SwapFeeBps,
		w.DisplayName,
		time.Now().UTC(),
	)
	stored, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update wallet settings: %w", err)
	}
	return stored, nil
}

// Deactivate soft-deletes a wallet
func (r *WalletRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE wallets SET active = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns a page of active wallets in creation order
func (r *WalletRepository) ListActive(ctx context.Context, offset, limit int) ([]*models.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE active
		ORDER BY created_at ASC, id ASC
		OFFSET $1 LIMIT $2`

	rows, err := r.db.Pool().Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}
	return wallets, nil
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	var basis string
	err := row.Scan(
		&w.ID,
		&w.StakeAddress,
		&w.DisplayName,
		&w.Active,
		&basis,
		&w.DeviationThresholdPctPoints,
		&w.SwapFeeBps,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.ThresholdBasis = types.ThresholdBasis(basis)
	return &w, nil
}

var _ WalletStore = (*WalletRepository)(nil)
