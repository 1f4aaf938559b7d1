package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cardano-portfolio/internal/models"
)

// PriceHistoryRepository mirrors price snapshots into ClickHouse for chart queries.
// The table is a ReplacingMergeTree on (unit, bucket), so re-inserting a bucket
// converges to the latest price.
type PriceHistoryRepository struct {
	db *ClickHouseDB
}

// NewPriceHistoryRepository creates a new price history repository
func NewPriceHistoryRepository(db *ClickHouseDB) *PriceHistoryRepository {
	return &PriceHistoryRepository{db: db}
}

// Insert appends prices in one batch
func (r *PriceHistoryRepository) Insert(ctx context.Context, prices []models.PriceSnapshot) error {
	if len(prices) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, "INSERT INTO price_history (bucket, unit, price_usd, source)")
	if err != nil {
		return fmt.Errorf("failed to prepare price history batch: %w", err)
	}

	for _, p := range prices {
		if err := batch.Append(p.Bucket.UTC(), p.Unit, p.PriceUSD, p.Source); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append price %s: %w", p.Unit, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send price history batch: %w", err)
	}
	return nil
}

// GetHistory returns the price series of a unit within [from, to]
func (r *PriceHistoryRepository) GetHistory(ctx context.Context, unit string, from, to time.Time) ([]models.PriceSnapshot, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT bucket, unit, price_usd, source
		FROM price_history FINAL
		WHERE unit = ? AND bucket >= ? AND bucket <= ?
		ORDER BY bucket ASC`, unit, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var out []models.PriceSnapshot
	for rows.Next() {
		var p models.PriceSnapshot
		if err := rows.Scan(&p.Bucket, &p.Unit, &p.PriceUSD, &p.Source); err != nil {
			return nil, fmt.Errorf("failed to scan price history row: %w", err)
		}
		p.Bucket = p.Bucket.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history: %w", err)
	}
	return out, nil
}

var _ PriceHistoryStore = (*PriceHistoryRepository)(nil)
