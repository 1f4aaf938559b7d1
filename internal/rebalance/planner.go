// Package rebalance proposes advisory swaps that move a portfolio toward its targets.
//
// The planner is a single greedy pass: the most overweight unit is swapped into the
// most underweight unit until one side runs out. It does not try to minimise the
// number of swaps or trading cost.
package rebalance

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// epsilon absorbs floating point noise when classifying deltas
const epsilon = 1e-12

// ZeroTotalNote is the only note of a plan for a portfolio with no value
const ZeroTotalNote = "Portfolio total value is zero; cannot rebalance."

// Input is everything the planner needs. Values and prices share one basis.
type Input struct {
	TotalValue         float64
	CurrentValueByUnit map[string]float64
	TargetPctByUnit    map[string]float64
	PriceByUnit        map[string]*float64
	SwapFeeBps         float64
}

// Allocation describes one unit of the working set
type Allocation struct {
	Unit         string   `json:"unit"`
	CurrentValue float64  `json:"currentValue"`
	CurrentPct   float64  `json:"currentPct"`
	TargetPct    float64  `json:"targetPct"`
	DesiredValue float64  `json:"desiredValue"`
	Delta        float64  `json:"delta"`
	Price        *float64 `json:"price"`
}

// Suggestion is one advisory swap. TradeValue is measured before the fee.
type Suggestion struct {
	FromUnit     string  `json:"fromUnit"`
	ToUnit       string  `json:"toUnit"`
	FromQtyHuman float64 `json:"fromQtyHuman"`
	ToQtyHuman   float64 `json:"toQtyHuman"`
	TradeValue   float64 `json:"tradeValue"`
}

// Plan is the planner output
type Plan struct {
	Allocations []Allocation `json:"allocations"`
	Suggestions []Suggestion `json:"suggestions"`
	Notes       []string     `json:"notes"`
}

type leg struct {
	unit  string
	delta float64
	price *float64
}

// Build computes a deterministic rebalance plan
func Build(in Input) Plan {
	plan := Plan{
		Allocations: []Allocation{},
		Suggestions: []Suggestion{},
		Notes:       []string{},
	}

	total := in.TotalValue
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		plan.Notes = append(plan.Notes, ZeroTotalNote)
		return plan
	}

	var over, under []*leg
	for _, unit := range workingSet(in) {
		current := in.CurrentValueByUnit[unit]
		target := in.TargetPctByUnit[unit]
		desired := target / 100 * total
		delta := current - desired
		price := usablePrice(in.PriceByUnit[unit])

		plan.Allocations = append(plan.Allocations, Allocation{
			Unit:         unit,
			CurrentValue: current,
			CurrentPct:   100 * current / total,
			TargetPct:    target,
			DesiredValue: desired,
			Delta:        delta,
			Price:        price,
		})

		switch {
		case delta > epsilon:
			over = append(over, &leg{unit: unit, delta: delta, price: price})
		case delta < -epsilon:
			under = append(under, &leg{unit: unit, delta: delta, price: price})
		}
	}

	sort.SliceStable(over, func(i, j int) bool {
		if over[i].delta != over[j].delta {
			return over[i].delta > over[j].delta
		}
		return over[i].unit < over[j].unit
	})
	sort.SliceStable(under, func(i, j int) bool {
		if under[i].delta != under[j].delta {
			return under[i].delta < under[j].delta
		}
		return under[i].unit < under[j].unit
	})

	feeRate := math.Max(0, in.SwapFeeBps) / 10000
	if math.IsNaN(feeRate) {
		feeRate = 0
	}

	skipped := 0
	i, j := 0, 0
	for i < len(over) && j < len(under) {
		from, to := over[i], under[j]

		if from.price == nil {
			plan.Notes = append(plan.Notes, fmt.Sprintf("Missing price for %s; cannot sell it.", from.unit))
			skipped++
			i++
			continue
		}
		if to.price == nil {
			plan.Notes = append(plan.Notes, fmt.Sprintf("Missing price for %s; cannot buy it.", to.unit))
			skipped++
			j++
			continue
		}

		move := math.Min(from.delta, -to.delta)
		fromQty := move / *from.price
		received := move * (1 - feeRate)
		toQty := received / *to.price

		plan.Suggestions = append(plan.Suggestions, Suggestion{
			FromUnit:     from.unit,
			ToUnit:       to.unit,
			FromQtyHuman: round(fromQty, 8),
			ToQtyHuman:   round(toQty, 8),
			TradeValue:   round(move, 6),
		})

		from.delta -= move
		to.delta += move
		if from.delta <= epsilon {
			i++
		}
		if to.delta >= -epsilon {
			j++
		}
	}

	if len(plan.Suggestions) == 0 {
		switch {
		case len(over) == 0 || len(under) == 0:
			plan.Notes = append(plan.Notes, "Portfolio already matches its targets; no swaps needed.")
		case skipped > 0:
			plan.Notes = append(plan.Notes, "No swaps suggested: every candidate swap is missing a price.")
		}
	}

	return plan
}

// workingSet is the sorted union of units with a current value or a target
func workingSet(in Input) []string {
	seen := make(map[string]struct{}, len(in.CurrentValueByUnit)+len(in.TargetPctByUnit))
	for u := range in.CurrentValueByUnit {
		seen[u] = struct{}{}
	}
	for u := range in.TargetPctByUnit {
		seen[u] = struct{}{}
	}
	units := make([]string, 0, len(seen))
	for u := range seen {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}

func usablePrice(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) || *p <= 0 {
		return nil
	}
	v := *p
	return &v
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
