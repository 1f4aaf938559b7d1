package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cardano-portfolio/internal/models"
)

// TargetRepository handles wallet target persistence
type TargetRepository struct {
	db *PostgresDB
}

// NewTargetRepository creates a new target repository
func NewTargetRepository(db *PostgresDB) *TargetRepository {
	return &TargetRepository{db: db}
}

// Replace swaps the wallet's whole target set in one transaction
func (r *TargetRepository) Replace(ctx context.Context, walletID string, targets []models.Target) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM wallet_targets WHERE wallet_id = $1`, walletID); err != nil {
			return fmt.Errorf("failed to delete targets: %w", err)
		}
		if len(targets) == 0 {
			return nil
		}

		rows := make([][]interface{}, len(targets))
		for i, t := range targets {
			rows[i] = []interface{}{walletID, t.Unit, t.TargetPct}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"wallet_targets"},
			[]string{"wallet_id", "unit", "target_pct"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("failed to insert targets: %w", err)
		}
		return nil
	})
}

// ListByWallet returns the targets of one wallet ordered by unit
func (r *TargetRepository) ListByWallet(ctx context.Context, walletID string) ([]models.Target, error) {
	byWallet, err := r.ListByWallets(ctx, []string{walletID})
	if err != nil {
		return nil, err
	}
	return byWallet[walletID], nil
}

// ListByWallets returns targets for many wallets in one query
func (r *TargetRepository) ListByWallets(ctx context.Context, walletIDs []string) (map[string][]models.Target, error) {
	out := make(map[string][]models.Target, len(walletIDs))
	if len(walletIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT wallet_id, unit, target_pct
		FROM wallet_targets
		WHERE wallet_id = ANY($1::uuid[])
		ORDER BY wallet_id, unit`, walletIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Target
		if err := rows.Scan(&t.WalletID, &t.Unit, &t.TargetPct); err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		out[t.WalletID] = append(out[t.WalletID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}
	return out, nil
}

var _ TargetStore = (*TargetRepository)(nil)
