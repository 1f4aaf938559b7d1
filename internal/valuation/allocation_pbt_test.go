package valuation

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAllocationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	valuesGen := gen.SliceOfN(8, gen.Float64Range(0, 1e9)).Map(func(vs []float64) map[string]float64 {
		m := make(map[string]float64, len(vs))
		for i, v := range vs {
			m[fmt.Sprintf("unit%d", i)] = v
		}
		return m
	})

	properties.Property("allocations sum to 100 when total is positive", prop.ForAll(
		func(values map[string]float64) bool {
			if Total(values) <= 0 {
				return true
			}
			var sum float64
			for _, p := range Allocate(values) {
				sum += p
			}
			return math.Abs(sum-100) < 1e-6
		},
		valuesGen,
	))

	properties.Property("every allocation is within [0, 100]", prop.ForAll(
		func(values map[string]float64) bool {
			for _, p := range Allocate(values) {
				if p < 0 || p > 100+1e-9 || math.IsNaN(p) {
					return false
				}
			}
			return true
		},
		valuesGen,
	))

	properties.TestingRun(t)
}
