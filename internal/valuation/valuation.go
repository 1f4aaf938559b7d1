// Package valuation turns human quantities and USD prices into per-asset values under a
// threshold basis, and values into percentage allocations and deviations.
package valuation

import (
	"math"

	"github.com/cardano-portfolio/internal/types"
)

// ReferenceUnit returns the unit whose USD price denominates the basis, if any
func ReferenceUnit(basis types.ThresholdBasis) (string, bool) {
	switch basis {
	case types.BasisADA:
		return types.UnitLovelace, true
	case types.BasisBTC:
		return types.UnitBTC, true
	default:
		return "", false
	}
}

// referencePrice returns the basis divisor, or false when the basis degrades to USD
func referencePrice(pricesUSD map[string]*float64, basis types.ThresholdBasis) (float64, bool) {
	unit, ok := ReferenceUnit(basis)
	if !ok {
		return 0, false
	}
	p := pricesUSD[unit]
	if !usable(p) {
		return 0, false
	}
	return *p, true
}

func usable(p *float64) bool {
	return p != nil && *p > 0 && !math.IsInf(*p, 0) && !math.IsNaN(*p)
}

// ValuePerAsset values each quantity under the basis.
//
// holdings: the quantity itself (mixed units are summed as-is).
// usd: qty * priceUsd; units without a usable price are left out.
// ada, btc: the USD value divided by the reference unit's USD price, or the
// plain USD value when that reference price is unavailable.
func ValuePerAsset(quantities map[string]float64, pricesUSD map[string]*float64, basis types.ThresholdBasis) map[string]float64 {
	values := make(map[string]float64, len(quantities))

	if basis == types.BasisHoldings {
		for unit, qty := range quantities {
			values[unit] = qty
		}
		return values
	}

	ref, hasRef := referencePrice(pricesUSD, basis)
	for unit, qty := range quantities {
		p := pricesUSD[unit]
		if !usable(p) {
			continue
		}
		v := qty * *p
		if hasRef {
			v /= ref
		}
		values[unit] = v
	}
	return values
}

// BasisPrices expresses each unit's price in basis terms, for the rebalance planner.
// Holdings prices every unit at 1. Units without a usable USD price map to nil.
func BasisPrices(units []string, pricesUSD map[string]*float64, basis types.ThresholdBasis) map[string]*float64 {
	out := make(map[string]*float64, len(units))
	ref, hasRef := referencePrice(pricesUSD, basis)

	for _, unit := range units {
		if basis == types.BasisHoldings {
			one := 1.0
			out[unit] = &one
			continue
		}
		p := pricesUSD[unit]
		if !usable(p) {
			out[unit] = nil
			continue
		}
		v := *p
		if hasRef {
			v /= ref
		}
		out[unit] = &v
	}
	return out
}

// Total sums values
func Total(values map[string]float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}
