package models

import (
	"time"

	"github.com/cardano-portfolio/internal/types"
)

// TokenDefinition tells the price resolver how to price a unit.
// A unit without a definition is unpriceable (except the two base units).
type TokenDefinition struct {
	Unit            string            `json:"unit" db:"unit"`
	Symbol          string            `json:"symbol" db:"symbol"`
	Decimals        *int              `json:"decimals,omitempty" db:"decimals"`
	PriceSource     types.PriceSource `json:"priceSource" db:"price_source"`
	TickerPair      *string           `json:"tickerPair,omitempty" db:"ticker_pair"`
	TickerResultKey *string           `json:"tickerResultKey,omitempty" db:"ticker_result_key"`
	AggregatorID    *string           `json:"aggregatorId,omitempty" db:"aggregator_id"`
	ManualPriceUSD  *float64          `json:"manualPriceUsd,omitempty" db:"manual_price_usd"`
	UpdatedAt       time.Time         `json:"updatedAt" db:"updated_at"`
}
