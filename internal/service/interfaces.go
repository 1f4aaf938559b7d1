// Package service implements the snapshot pipeline, the threshold alert evaluator
// and the wallet and portfolio operations built on top of them.
package service

import (
	"context"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/pricing"
)

// BalanceProvider reads current balances for a batch of stake addresses in one call
type BalanceProvider interface {
	// GetAccountInfo returns the lovelace balance per stake address.
	// Unknown addresses are absent from the result.
	GetAccountInfo(ctx context.Context, addresses []string) (map[string]models.AccountBalance, error)
	// GetAccountAssets returns the native tokens held by the stake addresses
	GetAccountAssets(ctx context.Context, addresses []string) ([]models.AccountAsset, error)
}

// PriceResolver resolves USD quotes for many units in one pass
type PriceResolver interface {
	ResolvePrices(ctx context.Context, units []string) map[string]pricing.Quote
}

// Notifier delivers a plain-text alert
type Notifier interface {
	Send(ctx context.Context, text string) error
}
