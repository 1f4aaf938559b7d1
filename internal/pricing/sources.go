// Package pricing resolves USD prices for asset units from pluggable sources.
package pricing

import (
	"context"

	"github.com/cardano-portfolio/internal/models"
)

// TickerSource is an exchange ticker that prices many pairs in one call.
// The result is keyed by the exchange's own result key, which may differ
// from the requested pair name.
type TickerSource interface {
	Name() string
	GetTicker(ctx context.Context, pairs []string) (map[string]float64, error)
}

// AggregatorSource is a market data aggregator that prices many ids in one call
type AggregatorSource interface {
	Name() string
	GetSimplePrice(ctx context.Context, ids []string) (map[string]float64, error)
}

// DefinitionStore looks up token definitions by unit.
// Units without a definition are absent from the result.
type DefinitionStore interface {
	GetByUnits(ctx context.Context, units []string) (map[string]*models.TokenDefinition, error)
}

// Cache stores resolved quotes for a short time
type Cache interface {
	GetQuotes(ctx context.Context, units []string) (map[string]Quote, error)
	SetQuotes(ctx context.Context, quotes map[string]Quote) error
}

// Quote is the resolution outcome for one unit.
// Exactly one of PriceUSD or Error is set.
type Quote struct {
	PriceUSD *float64 `json:"priceUsd"`
	Source   *string  `json:"source"`
	Error    *string  `json:"error"`
}

// Resolved reports whether the quote carries a price
func (q Quote) Resolved() bool {
	return q.PriceUSD != nil
}

func priced(price float64, source string) Quote {
	return Quote{PriceUSD: &price, Source: &source}
}

func failed(source, msg string) Quote {
	q := Quote{Error: &msg}
	if source != "" {
		q.Source = &source
	}
	return q
}

// PricesUSD flattens quotes into the price map consumed by valuation
func PricesUSD(quotes map[string]Quote) map[string]*float64 {
	out := make(map[string]*float64, len(quotes))
	for unit, q := range quotes {
		out[unit] = q.PriceUSD
	}
	return out
}
