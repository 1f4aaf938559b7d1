package valuation

import (
	"math"
	"sort"

	"github.com/cardano-portfolio/internal/types"
)

// Allocate returns pct[u] = 100 * values[u] / sum(values).
// When the sum is not positive every percentage is 0.
func Allocate(values map[string]float64) map[string]float64 {
	pct := make(map[string]float64, len(values))
	total := Total(values)
	if !(total > 0) || math.IsInf(total, 0) {
		for unit := range values {
			pct[unit] = 0
		}
		return pct
	}
	for unit, v := range values {
		pct[unit] = 100 * v / total
	}
	return pct
}

// Deviation is the gap between current and target allocation for one tracked unit
type Deviation struct {
	Unit       string  `json:"unit"`
	CurrentPct float64 `json:"currentPct"`
	TargetPct  float64 `json:"targetPct"`
	// DiffPct is current minus target, in percentage points
	DiffPct   float64 `json:"diffPct"`
	Triggered bool    `json:"triggered"`
}

// Deviations compares current allocation with targets for every targeted unit.
// A unit triggers when |diff| >= threshold. Results are ordered by |diff|
// descending, then unit.
func Deviations(currentPct map[string]float64, targetPct map[string]float64, threshold float64) []Deviation {
	out := make([]Deviation, 0, len(targetPct))
	for unit, target := range targetPct {
		current := currentPct[unit]
		diff := current - target
		out = append(out, Deviation{
			Unit:       unit,
			CurrentPct: current,
			TargetPct:  target,
			DiffPct:    diff,
			Triggered:  math.Abs(diff) >= threshold,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].DiffPct), math.Abs(out[j].DiffPct)
		if ai != aj {
			return ai > aj
		}
		return out[i].Unit < out[j].Unit
	})
	return out
}

// Triggered filters deviations down to the ones that crossed the threshold
func Triggered(devs []Deviation) []Deviation {
	var out []Deviation
	for _, d := range devs {
		if d.Triggered {
			out = append(out, d)
		}
	}
	return out
}

// Result bundles one valuation pass over a wallet's holdings
type Result struct {
	Values     map[string]float64 `json:"values"`
	Total      float64            `json:"total"`
	CurrentPct map[string]float64 `json:"currentPct"`
}

// Evaluate values, totals and allocates in one step
func Evaluate(quantities map[string]float64, pricesUSD map[string]*float64, basis types.ThresholdBasis) Result {
	values := ValuePerAsset(quantities, pricesUSD, basis)
	return Result{
		Values:     values,
		Total:      Total(values),
		CurrentPct: Allocate(values),
	}
}

// Evaluable reports whether deviations can be computed from this result
func (r Result) Evaluable() bool {
	return r.Total > 0 && !math.IsInf(r.Total, 0)
}
