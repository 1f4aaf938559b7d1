package rebalance

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type scenario struct {
	Current map[string]float64
	Targets map[string]float64
	Prices  map[string]*float64
	FeeBps  float64
}

func genScenario() gopter.Gen {
	return gopter.CombineGens(
		gen.SliceOfN(6, gen.Float64Range(0, 10000)),
		gen.SliceOfN(6, gen.Float64Range(0, 1)),
		gen.SliceOfN(6, gen.Float64Range(-1, 100)),
		gen.Float64Range(-10, 500),
	).Map(func(vals []interface{}) scenario {
		current := vals[0].([]float64)
		weights := vals[1].([]float64)
		prices := vals[2].([]float64)
		fee := vals[3].(float64)

		var wsum float64
		for _, w := range weights {
			wsum += w
		}

		s := scenario{
			Current: map[string]float64{},
			Targets: map[string]float64{},
			Prices:  map[string]*float64{},
			FeeBps:  fee,
		}
		for i := range current {
			unit := fmt.Sprintf("u%d", i)
			s.Current[unit] = current[i]
			if wsum > 0 {
				s.Targets[unit] = 100 * weights[i] / wsum
			}
			if prices[i] > 0 {
				price := prices[i]
				s.Prices[unit] = &price
			}
		}
		return s
	})
}

func (s scenario) input() Input {
	var total float64
	for _, v := range s.Current {
		total += v
	}
	return Input{
		TotalValue:         total,
		CurrentValueByUnit: s.Current,
		TargetPctByUnit:    s.Targets,
		PriceByUnit:        s.Prices,
		SwapFeeBps:         s.FeeBps,
	}
}

func TestPlannerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("traded value never exceeds total overweight", prop.ForAll(
		func(s scenario) bool {
			plan := Build(s.input())

			var overweight float64
			for _, a := range plan.Allocations {
				if a.Delta > epsilon {
					overweight += a.Delta
				}
			}
			var traded float64
			for _, sg := range plan.Suggestions {
				traded += sg.TradeValue
			}
			return traded <= overweight+1e-6*float64(len(plan.Suggestions)+1)
		},
		genScenario(),
	))

	properties.Property("suggestions only move between priced units", prop.ForAll(
		func(s scenario) bool {
			for _, sg := range Build(s.input()).Suggestions {
				if s.Prices[sg.FromUnit] == nil || s.Prices[sg.ToUnit] == nil {
					return false
				}
				if sg.FromUnit == sg.ToUnit {
					return false
				}
			}
			return true
		},
		genScenario(),
	))

	properties.Property("received quantity reflects the fee", prop.ForAll(
		func(s scenario) bool {
			feeRate := math.Max(0, s.FeeBps) / 10000
			for _, sg := range Build(s.input()).Suggestions {
				price := *s.Prices[sg.ToUnit]
				want := sg.TradeValue * (1 - feeRate) / price
				// both TradeValue and ToQtyHuman are rounded
				if math.Abs(sg.ToQtyHuman-want) > 1e-8+1e-6/price {
					return false
				}
			}
			return true
		},
		genScenario(),
	))

	properties.Property("suggestion count is bounded by the working set", prop.ForAll(
		func(s scenario) bool {
			plan := Build(s.input())
			return len(plan.Suggestions) <= len(plan.Allocations)
		},
		genScenario(),
	))

	properties.Property("identical input yields identical plan", prop.ForAll(
		func(s scenario) bool {
			a, b := Build(s.input()), Build(s.input())
			return fmt.Sprintf("%+v", a.Suggestions) == fmt.Sprintf("%+v", b.Suggestions)
		},
		genScenario(),
	))

	properties.TestingRun(t)
}
