package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardano-portfolio/internal/types"
)

func f(v float64) *float64 { return &v }

func TestValuePerAsset(t *testing.T) {
	qty := map[string]float64{
		types.UnitLovelace: 1000,
		"tokA":             50,
		"tokB":             10,
	}
	prices := map[string]*float64{
		types.UnitLovelace: f(0.5),
		types.UnitBTC:      f(50000),
		"tokA":             f(2),
		"tokB":             nil,
	}

	t.Run("usd excludes unpriced", func(t *testing.T) {
		v := ValuePerAsset(qty, prices, types.BasisUSD)
		assert.Equal(t, map[string]float64{types.UnitLovelace: 500, "tokA": 100}, v)
	})

	t.Run("ada divides by lovelace price", func(t *testing.T) {
		v := ValuePerAsset(qty, prices, types.BasisADA)
		assert.InDelta(t, 1000, v[types.UnitLovelace], 1e-9)
		assert.InDelta(t, 200, v["tokA"], 1e-9)
		assert.NotContains(t, v, "tokB")
	})

	t.Run("btc divides by btc price", func(t *testing.T) {
		v := ValuePerAsset(qty, prices, types.BasisBTC)
		assert.InDelta(t, 0.01, v[types.UnitLovelace], 1e-12)
		assert.InDelta(t, 0.002, v["tokA"], 1e-12)
	})

	t.Run("missing reference price degrades to usd", func(t *testing.T) {
		noBTC := map[string]*float64{types.UnitLovelace: f(0.5), "tokA": f(2)}
		assert.Equal(t, ValuePerAsset(qty, noBTC, types.BasisUSD), ValuePerAsset(qty, noBTC, types.BasisBTC))
	})

	t.Run("holdings uses raw quantity", func(t *testing.T) {
		v := ValuePerAsset(qty, nil, types.BasisHoldings)
		assert.Equal(t, qty, v)
	})
}

func TestBasisPrices(t *testing.T) {
	prices := map[string]*float64{types.UnitLovelace: f(0.5), "tokA": f(2)}
	units := []string{types.UnitLovelace, "tokA", "tokB"}

	ada := BasisPrices(units, prices, types.BasisADA)
	require.NotNil(t, ada["tokA"])
	assert.InDelta(t, 4, *ada["tokA"], 1e-12)
	assert.InDelta(t, 1, *ada[types.UnitLovelace], 1e-12)
	assert.Nil(t, ada["tokB"])

	holdings := BasisPrices(units, nil, types.BasisHoldings)
	for _, u := range units {
		require.NotNil(t, holdings[u])
		assert.Equal(t, 1.0, *holdings[u])
	}
}

func TestAllocate(t *testing.T) {
	pct := Allocate(map[string]float64{"A": 700, "B": 300})
	assert.InDelta(t, 70, pct["A"], 1e-9)
	assert.InDelta(t, 30, pct["B"], 1e-9)

	zero := Allocate(map[string]float64{"A": 0, "B": 0})
	assert.Equal(t, map[string]float64{"A": 0, "B": 0}, zero)

	negative := Allocate(map[string]float64{"A": -5})
	assert.Equal(t, 0.0, negative["A"])
}

func TestDeviations_ThresholdBoundary(t *testing.T) {
	current := map[string]float64{"A": 60, "B": 40}
	targets := map[string]float64{"A": 50, "B": 50}

	devs := Deviations(current, targets, 10)
	require.Len(t, devs, 2)
	assert.Equal(t, "A", devs[0].Unit)
	assert.InDelta(t, 10, devs[0].DiffPct, 1e-12)
	assert.True(t, devs[0].Triggered)
	assert.True(t, devs[1].Triggered)

	assert.Empty(t, Triggered(Deviations(current, targets, 10.01)))
}

func TestDeviations_UntrackedHoldingsIgnored(t *testing.T) {
	current := map[string]float64{"A": 50, "C": 50}
	targets := map[string]float64{"A": 100}

	devs := Deviations(current, targets, 5)
	require.Len(t, devs, 1)
	assert.Equal(t, "A", devs[0].Unit)
	assert.InDelta(t, -50, devs[0].DiffPct, 1e-12)
}

func TestEvaluate(t *testing.T) {
	r := Evaluate(map[string]float64{"A": 1}, map[string]*float64{}, types.BasisUSD)
	assert.False(t, r.Evaluable())
	assert.Empty(t, r.CurrentPct)

	r = Evaluate(map[string]float64{"A": 1, "B": 3}, map[string]*float64{"A": f(1), "B": f(1)}, types.BasisUSD)
	assert.True(t, r.Evaluable())
	assert.InDelta(t, 4, r.Total, 1e-12)
	assert.InDelta(t, 75, r.CurrentPct["B"], 1e-9)
}
