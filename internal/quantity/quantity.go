// Package quantity converts raw on-chain integer quantities into human amounts.
package quantity

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cardano-portfolio/internal/types"
)

// ToHuman scales a raw integer quantity by 10^-decimals.
// A nil or non-positive decimals returns the raw value unchanged.
// Non-numeric input yields 0 so one malformed balance cannot abort a batch.
func ToHuman(raw string, decimals *int) float64 {
	d, ok := parse(raw)
	if !ok {
		return 0
	}
	if decimals != nil && *decimals > 0 {
		d = d.Shift(int32(-*decimals))
	}
	return d.InexactFloat64()
}

// DecimalsFor returns the decimals hint to use for a unit.
// Lovelace always scales by the fixed ADA constant.
func DecimalsFor(unit string, hint *int) *int {
	if unit == types.UnitLovelace {
		d := types.LovelaceDecimals
		return &d
	}
	return hint
}

// Sum adds raw integer quantities exactly. Malformed entries count as zero.
func Sum(raws ...string) string {
	total := decimal.Zero
	for _, r := range raws {
		if d, ok := parse(r); ok {
			total = total.Add(d)
		}
	}
	return total.String()
}

func parse(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
