package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/types"
)

const tokenDefinitionColumns = `unit, symbol, decimals, price_source, ticker_pair,
	ticker_result_key, aggregator_id, manual_price_usd, updated_at`

// TokenDefinitionRepository handles per-unit pricing configuration
type TokenDefinitionRepository struct {
	db *PostgresDB
}

// NewTokenDefinitionRepository creates a new token definition repository
func NewTokenDefinitionRepository(db *PostgresDB) *TokenDefinitionRepository {
	return &TokenDefinitionRepository{db: db}
}

// Upsert inserts or replaces the definition of a unit
func (r *TokenDefinitionRepository) Upsert(ctx context.Context, d *models.TokenDefinition) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO token_definitions (`+tokenDefinitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (unit) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			price_source = EXCLUDED.price_source,
			ticker_pair = EXCLUDED.ticker_pair,
			ticker_result_key = EXCLUDED.ticker_result_key,
			aggregator_id = EXCLUDED.aggregator_id,
			manual_price_usd = EXCLUDED.manual_price_usd,
			updated_at = EXCLUDED.updated_at`,
		d.Unit, d.Symbol, d.Decimals, string(d.PriceSource), d.TickerPair,
		d.TickerResultKey, d.AggregatorID, d.ManualPriceUSD, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token definition: %w", err)
	}
	return nil
}

// SetManualPrice switches a unit to the manual source, keeping its other fields
func (r *TokenDefinitionRepository) SetManualPrice(ctx context.Context, unit string, priceUSD float64) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO token_definitions (unit, price_source, manual_price_usd, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (unit) DO UPDATE SET
			price_source = EXCLUDED.price_source,
			manual_price_usd = EXCLUDED.manual_price_usd,
			updated_at = EXCLUDED.updated_at`,
		unit, string(types.SourceManual), priceUSD, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set manual price: %w", err)
	}
	return nil
}

// GetByUnits returns the definitions that exist for the given units
func (r *TokenDefinitionRepository) GetByUnits(ctx context.Context, units []string) (map[string]*models.TokenDefinition, error) {
	out := make(map[string]*models.TokenDefinition, len(units))
	if len(units) == 0 {
		return out, nil
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+tokenDefinitionColumns+` FROM token_definitions WHERE unit = ANY($1)`, units)
	if err != nil {
		return nil, fmt.Errorf("failed to query token definitions: %w", err)
	}
	defs, err := collectTokenDefinitions(rows)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		out[d.Unit] = d
	}
	return out, nil
}

// List returns every definition ordered by unit
func (r *TokenDefinitionRepository) List(ctx context.Context) ([]*models.TokenDefinition, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+tokenDefinitionColumns+` FROM token_definitions ORDER BY unit`)
	if err != nil {
		return nil, fmt.Errorf("failed to list token definitions: %w", err)
	}
	return collectTokenDefinitions(rows)
}

func collectTokenDefinitions(rows pgx.Rows) ([]*models.TokenDefinition, error) {
	defer rows.Close()

	var defs []*models.TokenDefinition
	for rows.Next() {
		var d models.TokenDefinition
		var source string
		err := rows.Scan(&d.Unit, &d.Symbol, &d.Decimals, &source, &d.TickerPair,
			&d.TickerResultKey, &d.AggregatorID, &d.ManualPriceUSD, &d.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token definition row: %w", err)
		}
		d.PriceSource = types.PriceSource(source)
		defs = append(defs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token definitions: %w", err)
	}
	return defs, nil
}

var _ TokenDefinitionStore = (*TokenDefinitionRepository)(nil)
