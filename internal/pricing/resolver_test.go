package pricing

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/types"
)

type mockTicker struct {
	calls  [][]string
	result map[string]float64
	err    error
}

func (m *mockTicker) Name() string { return "kraken" }

func (m *mockTicker) GetTicker(ctx context.Context, pairs []string) (map[string]float64, error) {
	m.calls = append(m.calls, append([]string(nil), pairs...))
	return m.result, m.err
}

type mockAggregator struct {
	calls  [][]string
	result map[string]float64
	err    error
}

func (m *mockAggregator) Name() string { return "coingecko" }

func (m *mockAggregator) GetSimplePrice(ctx context.Context, ids []string) (map[string]float64, error) {
	m.calls = append(m.calls, append([]string(nil), ids...))
	return m.result, m.err
}

type mockDefs struct {
	defs map[string]*models.TokenDefinition
	err  error
}

func (m *mockDefs) GetByUnits(ctx context.Context, units []string) (map[string]*models.TokenDefinition, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := map[string]*models.TokenDefinition{}
	for _, u := range units {
		if d, ok := m.defs[u]; ok {
			out[u] = d
		}
	}
	return out, nil
}

type mockCache struct {
	stored map[string]Quote
	writes [][]string
}

func (m *mockCache) GetQuotes(ctx context.Context, units []string) (map[string]Quote, error) {
	out := map[string]Quote{}
	for _, u := range units {
		if q, ok := m.stored[u]; ok {
			out[u] = q
		}
	}
	return out, nil
}

func (m *mockCache) SetQuotes(ctx context.Context, quotes map[string]Quote) error {
	if m.stored == nil {
		m.stored = map[string]Quote{}
	}
	units := make([]string, 0, len(quotes))
	for u := range quotes {
		units = append(units, u)
	}
	sort.Strings(units)
	m.writes = append(m.writes, units)
	for u, q := range quotes {
		m.stored[u] = q
	}
	return nil
}

func str(s string) *string { return &s }
func num(f float64) *float64 { return &f }

func tickerDef(unit, pair, hint string) *models.TokenDefinition {
	d := &models.TokenDefinition{Unit: unit, PriceSource: types.SourceTicker, TickerPair: str(pair)}
	if hint != "" {
		d.TickerResultKey = str(hint)
	}
	return d
}

func aggDef(unit, id string) *models.TokenDefinition {
	return &models.TokenDefinition{Unit: unit, PriceSource: types.SourceAggregator, AggregatorID: str(id)}
}

func manualDef(unit string, price float64) *models.TokenDefinition {
	return &models.TokenDefinition{Unit: unit, PriceSource: types.SourceManual, ManualPriceUSD: num(price)}
}

func baseUnits() []BaseUnit {
	return DefaultBaseUnits("ADAUSD", "cardano", "XBTUSD", "bitcoin")
}

func priceOf(t *testing.T, q Quote) float64 {
	t.Helper()
	require.NotNil(t, q.PriceUSD, "expected a price, got error %v", q.Error)
	return *q.PriceUSD
}

func TestResolvePrices_BatchesPerSource(t *testing.T) {
	ticker := &mockTicker{result: map[string]float64{
		"ADAUSD":   0.5,
		"XXBTZUSD": 60000,
		"SNEKUSD":  0.002,
	}}
	agg := &mockAggregator{result: map[string]float64{"indigo-protocol": 1.2, "minswap": 0.03}}
	defs := &mockDefs{defs: map[string]*models.TokenDefinition{
		types.UnitBTC: tickerDef(types.UnitBTC, "XBTUSD", "XXBTZUSD"),
		"snek":        tickerDef("snek", "SNEKUSD", ""),
		"indy":        aggDef("indy", "indigo-protocol"),
		"min":         aggDef("min", "minswap"),
		"stable":      manualDef("stable", 1),
	}}

	r := NewResolver(defs, ticker, agg, baseUnits())
	quotes := r.ResolvePrices(context.Background(), []string{
		types.UnitLovelace, types.UnitBTC, "snek", "indy", "min", "stable", "unknown", "snek",
	})

	require.Len(t, ticker.calls, 1)
	assert.ElementsMatch(t, []string{"ADAUSD", "XBTUSD", "SNEKUSD"}, ticker.calls[0])
	require.Len(t, agg.calls, 1)
	assert.ElementsMatch(t, []string{"indigo-protocol", "minswap"}, agg.calls[0])

	assert.Len(t, quotes, 7)
	assert.Equal(t, 0.5, priceOf(t, quotes[types.UnitLovelace]))
	assert.Equal(t, 60000.0, priceOf(t, quotes[types.UnitBTC]))
	assert.Equal(t, "kraken:XBTUSD", *quotes[types.UnitBTC].Source)
	assert.Equal(t, 0.002, priceOf(t, quotes["snek"]))
	assert.Equal(t, 1.2, priceOf(t, quotes["indy"]))
	assert.Equal(t, "coingecko:indigo-protocol", *quotes["indy"].Source)
	assert.Equal(t, 1.0, priceOf(t, quotes["stable"]))
	assert.Equal(t, "manual", *quotes["stable"].Source)

	assert.Nil(t, quotes["unknown"].PriceUSD)
	require.NotNil(t, quotes["unknown"].Error)
	assert.Equal(t, "no token definition", *quotes["unknown"].Error)
}

func TestResolvePrices_ManualNeverCallsOut(t *testing.T) {
	ticker := &mockTicker{}
	agg := &mockAggregator{}
	defs := &mockDefs{defs: map[string]*models.TokenDefinition{"stable": manualDef("stable", 0.99)}}

	quotes := NewResolver(defs, ticker, agg, baseUnits()).ResolvePrices(context.Background(), []string{"stable"})

	assert.Equal(t, 0.99, priceOf(t, quotes["stable"]))
	assert.Empty(t, ticker.calls)
	assert.Empty(t, agg.calls)
}

func TestResolvePrices_TickerFailureFallsBackForBaseUnits(t *testing.T) {
	ticker := &mockTicker{err: errors.New("503 service unavailable")}
	agg := &mockAggregator{result: map[string]float64{"cardano": 0.45, "bitcoin": 59000, "minswap": 0.03}}
	defs := &mockDefs{defs: map[string]*models.TokenDefinition{
		"snek": tickerDef("snek", "SNEKUSD", ""),
		"min":  aggDef("min", "minswap"),
	}}

	quotes := NewResolver(defs, ticker, agg, baseUnits()).ResolvePrices(context.Background(),
		[]string{types.UnitLovelace, types.UnitBTC, "snek", "min"})

	require.Len(t, agg.calls, 1)
	got := append([]string(nil), agg.calls[0]...)
	sort.Strings(got)
	assert.Equal(t, []string{"bitcoin", "cardano", "minswap"}, got)

	assert.Equal(t, 0.45, priceOf(t, quotes[types.UnitLovelace]))
	assert.Equal(t, "coingecko:cardano", *quotes[types.UnitLovelace].Source)
	assert.Equal(t, 59000.0, priceOf(t, quotes[types.UnitBTC]))
	assert.Equal(t, 0.03, priceOf(t, quotes["min"]))

	assert.Nil(t, quotes["snek"].PriceUSD)
	assert.Contains(t, *quotes["snek"].Error, "503")
}

func TestResolvePrices_AllSourcesDown(t *testing.T) {
	ticker := &mockTicker{err: errors.New("dial tcp: timeout")}
	agg := &mockAggregator{err: errors.New("429 too many requests")}

	quotes := NewResolver(&mockDefs{}, ticker, agg, baseUnits()).ResolvePrices(context.Background(),
		[]string{types.UnitLovelace})

	q := quotes[types.UnitLovelace]
	assert.Nil(t, q.PriceUSD)
	require.NotNil(t, q.Error)
	assert.Contains(t, *q.Error, "timeout")
	assert.Contains(t, *q.Error, "429")
}

func TestResolvePrices_DefinitionLookupFailure(t *testing.T) {
	ticker := &mockTicker{result: map[string]float64{"ADAUSD": 0.5}}
	defs := &mockDefs{err: errors.New("connection reset")}

	quotes := NewResolver(defs, ticker, nil, baseUnits()).ResolvePrices(context.Background(),
		[]string{types.UnitLovelace, "snek"})

	assert.Equal(t, 0.5, priceOf(t, quotes[types.UnitLovelace]))
	assert.Contains(t, *quotes["snek"].Error, "connection reset")
}

func TestResolvePrices_UsesCache(t *testing.T) {
	cache := &mockCache{stored: map[string]Quote{"snek": priced(0.003, "kraken:SNEKUSD")}}
	ticker := &mockTicker{result: map[string]float64{"ADAUSD": 0.5}}
	defs := &mockDefs{defs: map[string]*models.TokenDefinition{"snek": tickerDef("snek", "SNEKUSD", "")}}

	r := NewResolver(defs, ticker, nil, baseUnits(), WithCache(cache))
	quotes := r.ResolvePrices(context.Background(), []string{"snek", types.UnitLovelace})

	require.Len(t, ticker.calls, 1)
	assert.Equal(t, []string{"ADAUSD"}, ticker.calls[0])
	assert.Equal(t, 0.003, priceOf(t, quotes["snek"]))
	assert.Contains(t, cache.stored, types.UnitLovelace)

	// second call is served entirely from cache
	r.ResolvePrices(context.Background(), []string{"snek", types.UnitLovelace})
	assert.Len(t, ticker.calls, 1)
}

func TestResolvePrices_CachesOnlyFetchedQuotes(t *testing.T) {
	cache := &mockCache{stored: map[string]Quote{"snek": priced(0.003, "kraken:SNEKUSD")}}
	ticker := &mockTicker{result: map[string]float64{"ADAUSD": 0.5}}
	defs := &mockDefs{defs: map[string]*models.TokenDefinition{
		"snek":  tickerDef("snek", "SNEKUSD", ""),
		"fixed": manualDef("fixed", 2),
	}}

	r := NewResolver(defs, ticker, nil, baseUnits(), WithCache(cache))
	quotes := r.ResolvePrices(context.Background(), []string{"snek", types.UnitLovelace, "fixed", "unknown"})

	assert.Equal(t, 0.003, priceOf(t, quotes["snek"]))
	assert.Equal(t, 2.0, priceOf(t, quotes["fixed"]))
	assert.False(t, quotes["unknown"].Resolved())
	assert.Equal(t, [][]string{{types.UnitLovelace}}, cache.writes,
		"cache hits and manual prices are not written back")
}

func TestResolvePrices_Empty(t *testing.T) {
	ticker := &mockTicker{}
	quotes := NewResolver(&mockDefs{}, ticker, nil, baseUnits()).ResolvePrices(context.Background(), []string{"", " "})
	assert.Empty(t, quotes)
	assert.Empty(t, ticker.calls)
}

func TestMatchTickerResults(t *testing.T) {
	t.Run("hint wins over pair name", func(t *testing.T) {
		got := MatchTickerResults(
			[]string{"XBTUSD"},
			map[string]string{"XBTUSD": "XXBTZUSD"},
			map[string]float64{"XXBTZUSD": 100, "XBTUSD": 1},
		)
		assert.Equal(t, map[string]float64{"XBTUSD": 100}, got)
	})

	t.Run("pair name", func(t *testing.T) {
		got := MatchTickerResults([]string{"ADAUSD", "SNEKUSD"}, nil,
			map[string]float64{"ADAUSD": 0.5, "SNEKUSD": 0.002})
		assert.Equal(t, map[string]float64{"ADAUSD": 0.5, "SNEKUSD": 0.002}, got)
	})

	t.Run("sole remaining result", func(t *testing.T) {
		got := MatchTickerResults([]string{"ADAUSD", "XBTUSD"}, nil,
			map[string]float64{"ADAUSD": 0.5, "XXBTZUSD": 60000})
		assert.Equal(t, map[string]float64{"ADAUSD": 0.5, "XBTUSD": 60000}, got)
	})

	t.Run("ambiguous leftovers stay unresolved", func(t *testing.T) {
		got := MatchTickerResults([]string{"AUSD", "BUSD"}, nil,
			map[string]float64{"XAUSD": 1, "XBUSD": 2})
		assert.Empty(t, got)
	})
}

func TestPricesUSD(t *testing.T) {
	quotes := map[string]Quote{"a": priced(2, "manual"), "b": failed("", "x")}
	prices := PricesUSD(quotes)
	assert.Equal(t, 2.0, *prices["a"])
	assert.Nil(t, prices["b"])
}
