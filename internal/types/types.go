// Package types provides common type definitions for the portfolio tracker.
package types

import (
	"strings"
	"time"
)

// ThresholdBasis is the denomination in which allocations are evaluated
type ThresholdBasis string

const (
	// BasisUSD values every asset in US dollars
	BasisUSD ThresholdBasis = "usd"
	// BasisADA values every asset in ADA (USD value divided by the ADA/USD price)
	BasisADA ThresholdBasis = "ada"
	// BasisBTC values every asset in BTC (USD value divided by the BTC/USD price)
	BasisBTC ThresholdBasis = "btc"
	// BasisHoldings uses the human quantity itself as the value.
	// Warning: mixed units. Quantities of different assets are summed as-is.
	BasisHoldings ThresholdBasis = "holdings"
)

// ParseThresholdBasis parses a basis string, reporting whether it is known
func ParseThresholdBasis(s string) (ThresholdBasis, bool) {
	switch ThresholdBasis(strings.ToLower(strings.TrimSpace(s))) {
	case BasisUSD:
		return BasisUSD, true
	case BasisADA:
		return BasisADA, true
	case BasisBTC:
		return BasisBTC, true
	case BasisHoldings:
		return BasisHoldings, true
	default:
		return "", false
	}
}

// PriceSource selects how a unit is priced
type PriceSource string

const (
	// SourceTicker prices a unit from the exchange ticker (Kraken)
	SourceTicker PriceSource = "ticker"
	// SourceAggregator prices a unit from the market-data aggregator (CoinGecko)
	SourceAggregator PriceSource = "aggregator"
	// SourceManual uses a fixed price stored on the token definition
	SourceManual PriceSource = "manual"
)

// Well-known units
const (
	// UnitLovelace is the base denomination of ADA
	UnitLovelace = "lovelace"
	// UnitBTC is the reference commodity unit used for the BTC basis
	UnitBTC = "btc"
	// LovelaceDecimals converts lovelace to ADA
	LovelaceDecimals = 6
)

// HourBucket truncates t to the top of its hour in UTC.
// Snapshots and price snapshots are deduplicated on this value.
func HourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// ServiceError represents a business-level error returned by services
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Service error codes
const (
	CodeWalletNotFound    = "WALLET_NOT_FOUND"
	CodeSnapshotNotFound  = "SNAPSHOT_NOT_FOUND"
	CodeInvalidTargets    = "INVALID_TARGETS"
	CodeDuplicateTarget   = "DUPLICATE_TARGET"
	CodeInvalidParameter  = "INVALID_PARAMETER"
	CodeBalanceFetchError = "BALANCE_FETCH_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
)
