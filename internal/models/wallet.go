package models

import (
	"time"

	"github.com/cardano-portfolio/internal/types"
)

// Wallet is a tracked Cardano stake account and its alerting settings
type Wallet struct {
	ID                          string               `json:"id" db:"id"`
	StakeAddress                string               `json:"stakeAddress" db:"stake_address"`
	DisplayName                 string               `json:"displayName" db:"display_name"`
	Active                      bool                 `json:"active" db:"active"`
	ThresholdBasis              types.ThresholdBasis `json:"thresholdBasis" db:"threshold_basis"`
	DeviationThresholdPctPoints float64              `json:"deviationThresholdPctPoints" db:"deviation_threshold_pct_points"`
	SwapFeeBps                  float64              `json:"swapFeeBps" db:"swap_fee_bps"`
	CreatedAt                   time.Time            `json:"createdAt" db:"created_at"`
	UpdatedAt                   time.Time            `json:"updatedAt" db:"updated_at"`
}

// Target is the desired allocation of one unit within a wallet, in percentage points
type Target struct {
	WalletID  string  `json:"walletId" db:"wallet_id"`
	Unit      string  `json:"unit" db:"unit"`
	TargetPct float64 `json:"targetPct" db:"target_pct"`
}

// TargetPctByUnit indexes targets by unit
func TargetPctByUnit(targets []Target) map[string]float64 {
	out := make(map[string]float64, len(targets))
	for _, t := range targets {
		out[t.Unit] = t.TargetPct
	}
	return out
}
