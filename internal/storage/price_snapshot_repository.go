package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cardano-portfolio/internal/models"
)

// PriceSnapshotRepository stores one USD price per (bucket, unit), shared by every wallet
type PriceSnapshotRepository struct {
	db *PostgresDB
}

// NewPriceSnapshotRepository creates a new price snapshot repository
func NewPriceSnapshotRepository(db *PostgresDB) *PriceSnapshotRepository {
	return &PriceSnapshotRepository{db: db}
}

// Upsert writes prices, overwriting any row already stored for the same (bucket, unit)
func (r *PriceSnapshotRepository) Upsert(ctx context.Context, prices []models.PriceSnapshot) error {
	if len(prices) == 0 {
		return nil
	}

	query := `
		INSERT INTO price_snapshots (bucket, unit, price_usd, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bucket, unit) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			source = EXCLUDED.source,
			created_at = EXCLUDED.created_at`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, p := range prices {
		batch.Queue(query, p.Bucket.UTC(), p.Unit, p.PriceUSD, p.Source, now)
	}

	results := r.db.Pool().SendBatch(ctx, batch)
	defer results.Close()

	for _, p := range prices {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert price %s: %w", p.Unit, err)
		}
	}
	return nil
}

// GetByBucket returns the prices stored for a bucket, keyed by unit
func (r *PriceSnapshotRepository) GetByBucket(ctx context.Context, bucket time.Time, units []string) (map[string]models.PriceSnapshot, error) {
	out := make(map[string]models.PriceSnapshot, len(units))
	if len(units) == 0 {
		return out, nil
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT bucket, unit, price_usd, source, created_at
		FROM price_snapshots
		WHERE bucket = $1 AND unit = ANY($2)`, bucket.UTC(), units)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}

	prices, err := collectPrices(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range prices {
		out[p.Unit] = p
	}
	return out, nil
}

// ListByRange returns prices for units within [from, to] ordered by bucket
func (r *PriceSnapshotRepository) ListByRange(ctx context.Context, units []string, from, to time.Time) ([]models.PriceSnapshot, error) {
	if len(units) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT bucket, unit, price_usd, source, created_at
		FROM price_snapshots
		WHERE unit = ANY($1) AND bucket >= $2 AND bucket <= $3
		ORDER BY bucket ASC, unit ASC`, units, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query price range: %w", err)
	}
	return collectPrices(rows)
}

func collectPrices(rows pgx.Rows) ([]models.PriceSnapshot, error) {
	defer rows.Close()

	var prices []models.PriceSnapshot
	for rows.Next() {
		var p models.PriceSnapshot
		if err := rows.Scan(&p.Bucket, &p.Unit, &p.PriceUSD, &p.Source, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		p.Bucket = p.Bucket.UTC()
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}
	return prices, nil
}

var _ PriceSnapshotStore = (*PriceSnapshotRepository)(nil)
