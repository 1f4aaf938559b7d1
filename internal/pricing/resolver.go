package pricing

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cardano-portfolio/internal/logging"
	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/types"
)

// BaseUnit is a unit that is always priced, definition or not:
// ticker first, aggregator on failure.
type BaseUnit struct {
	Unit         string
	TickerPair   string
	AggregatorID string
}

// DefaultBaseUnits returns the native currency and the reference commodity
func DefaultBaseUnits(nativePair, nativeID, referencePair, referenceID string) []BaseUnit {
	return []BaseUnit{
		{Unit: types.UnitLovelace, TickerPair: nativePair, AggregatorID: nativeID},
		{Unit: types.UnitBTC, TickerPair: referencePair, AggregatorID: referenceID},
	}
}

// Resolver resolves USD prices. It never fails as a whole: every problem is
// recorded on the affected unit's quote.
type Resolver struct {
	defs       DefinitionStore
	ticker     TickerSource
	aggregator AggregatorSource
	cache      Cache
	base       map[string]BaseUnit
	logger     *logging.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithCache enables the quote cache
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithLogger overrides the logger
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a price resolver. ticker and aggregator may be nil.
func NewResolver(defs DefinitionStore, ticker TickerSource, aggregator AggregatorSource, base []BaseUnit, opts ...Option) *Resolver {
	r := &Resolver{
		defs:       defs,
		ticker:     ticker,
		aggregator: aggregator,
		base:       make(map[string]BaseUnit, len(base)),
		logger:     logging.GetGlobalLogger().WithComponent("price_resolver"),
	}
	for _, b := range base {
		r.base[b.Unit] = b
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type tickerRequest struct {
	unit string
	pair string
	hint string

	// fallbackID is set for base units only
	fallbackID string
}

type aggregatorRequest struct {
	unit string
	id   string

	// prior holds the ticker failure for a base unit falling back
	prior string
}

// ResolvePrices resolves each distinct unit once. The ticker and aggregator
// are each called at most once per invocation.
func (r *Resolver) ResolvePrices(ctx context.Context, units []string) map[string]Quote {
	out := make(map[string]Quote)
	pending := dedupe(units)
	if len(pending) == 0 {
		return out
	}

	pending = r.fromCache(ctx, pending, out)
	if len(pending) == 0 {
		return out
	}

	// only quotes fetched in this call are written back, so cached ones keep their TTL
	fetched := make(map[string]Quote, len(pending))

	defs, err := r.defs.GetByUnits(ctx, pending)
	if err != nil {
		r.logger.WithError(err).Warn("token definition lookup failed")
		defs = map[string]*models.TokenDefinition{}
		for _, u := range pending {
			if _, isBase := r.base[u]; !isBase {
				fetched[u] = failed("", fmt.Sprintf("token definition lookup failed: %v", err))
			}
		}
	}

	var tickerReqs []tickerRequest
	var aggReqs []aggregatorRequest
	for _, unit := range pending {
		if _, done := fetched[unit]; done {
			continue
		}
		def := defs[unit]

		if b, isBase := r.base[unit]; isBase {
			tickerReqs = append(tickerReqs, r.baseTickerRequest(b, def))
			continue
		}
		if def == nil {
			fetched[unit] = failed("", "no token definition")
			continue
		}

		switch def.PriceSource {
		case types.SourceManual:
			if def.ManualPriceUSD == nil || !validPrice(*def.ManualPriceUSD) {
				fetched[unit] = failed("manual", "manual price not set")
				continue
			}
			fetched[unit] = priced(*def.ManualPriceUSD, "manual")
		case types.SourceTicker:
			if def.TickerPair == nil || *def.TickerPair == "" {
				fetched[unit] = failed("", "ticker pair not configured")
				continue
			}
			tickerReqs = append(tickerReqs, tickerRequest{unit: unit, pair: *def.TickerPair, hint: deref(def.TickerResultKey)})
		case types.SourceAggregator:
			if def.AggregatorID == nil || *def.AggregatorID == "" {
				fetched[unit] = failed("", "aggregator id not configured")
				continue
			}
			aggReqs = append(aggReqs, aggregatorRequest{unit: unit, id: *def.AggregatorID})
		default:
			fetched[unit] = failed("", fmt.Sprintf("unknown price source %q", def.PriceSource))
		}
	}

	aggReqs = append(aggReqs, r.resolveTicker(ctx, tickerReqs, fetched)...)
	r.resolveAggregator(ctx, aggReqs, fetched)

	r.toCache(ctx, fetched)
	for u, q := range fetched {
		out[u] = q
	}
	return out
}

func (r *Resolver) baseTickerRequest(b BaseUnit, def *models.TokenDefinition) tickerRequest {
	req := tickerRequest{unit: b.Unit, pair: b.TickerPair, fallbackID: b.AggregatorID}
	if def != nil && def.AggregatorID != nil && *def.AggregatorID != "" {
		req.fallbackID = *def.AggregatorID
	}
	if def != nil && def.PriceSource == types.SourceTicker && def.TickerPair != nil && *def.TickerPair != "" {
		req.pair = *def.TickerPair
		req.hint = deref(def.TickerResultKey)
	}
	return req
}

// resolveTicker issues one batched ticker call and returns the base units that
// need the aggregator fallback
func (r *Resolver) resolveTicker(ctx context.Context, reqs []tickerRequest, out map[string]Quote) []aggregatorRequest {
	if len(reqs) == 0 {
		return nil
	}

	var fallback []aggregatorRequest
	fail := func(req tickerRequest, source, msg string) {
		if _, isBase := r.base[req.unit]; isBase {
			fallback = append(fallback, aggregatorRequest{unit: req.unit, id: req.fallbackID, prior: msg})
			return
		}
		out[req.unit] = failed(source, msg)
	}

	if r.ticker == nil {
		for _, req := range reqs {
			fail(req, "", "ticker source not configured")
		}
		return fallback
	}

	name := r.ticker.Name()
	pairs := make([]string, 0, len(reqs))
	hints := make(map[string]string)
	for _, req := range reqs {
		if _, seen := hints[req.pair]; !seen {
			pairs = append(pairs, req.pair)
			hints[req.pair] = req.hint
		} else if hints[req.pair] == "" {
			hints[req.pair] = req.hint
		}
	}

	result, err := r.ticker.GetTicker(ctx, pairs)
	if err != nil {
		r.logger.WithError(err).WithField("pairs", strings.Join(pairs, ",")).Warn("ticker request failed")
		for _, req := range reqs {
			fail(req, name+":"+req.pair, fmt.Sprintf("%s request failed: %v", name, err))
		}
		return fallback
	}

	matched := MatchTickerResults(pairs, hints, result)
	for _, req := range reqs {
		source := name + ":" + req.pair
		price, ok := matched[req.pair]
		switch {
		case !ok:
			fail(req, source, fmt.Sprintf("%s returned no result for %s", name, req.pair))
		case !validPrice(price):
			fail(req, source, fmt.Sprintf("%s returned invalid price %v for %s", name, price, req.pair))
		default:
			out[req.unit] = priced(price, source)
		}
	}
	return fallback
}

// MatchTickerResults maps each requested pair to a price from a batched ticker
// response. A pair matches its result-key hint first, then its own name.
// When exactly one pair and one result remain unmatched, they are paired up.
func MatchTickerResults(pairs []string, hints map[string]string, result map[string]float64) map[string]float64 {
	matched := make(map[string]float64, len(pairs))
	used := make(map[string]bool, len(result))

	for _, pair := range pairs {
		if hint := hints[pair]; hint != "" {
			if price, ok := result[hint]; ok && !used[hint] {
				matched[pair] = price
				used[hint] = true
				continue
			}
		}
		if price, ok := result[pair]; ok && !used[pair] {
			matched[pair] = price
			used[pair] = true
		}
	}

	var unresolved []string
	for _, pair := range pairs {
		if _, ok := matched[pair]; !ok {
			unresolved = append(unresolved, pair)
		}
	}
	var unused []string
	for key := range result {
		if !used[key] {
			unused = append(unused, key)
		}
	}
	if len(unresolved) == 1 && len(unused) == 1 {
		matched[unresolved[0]] = result[unused[0]]
	}

	return matched
}

func (r *Resolver) resolveAggregator(ctx context.Context, reqs []aggregatorRequest, out map[string]Quote) {
	if len(reqs) == 0 {
		return
	}

	fail := func(req aggregatorRequest, source, msg string) {
		if req.prior != "" {
			msg = req.prior + "; " + msg
		}
		out[req.unit] = failed(source, msg)
	}

	if r.aggregator == nil {
		for _, req := range reqs {
			fail(req, "", "aggregator source not configured")
		}
		return
	}

	name := r.aggregator.Name()
	ids := make([]string, 0, len(reqs))
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if req.id != "" && !seen[req.id] {
			seen[req.id] = true
			ids = append(ids, req.id)
		}
	}
	if len(ids) == 0 {
		for _, req := range reqs {
			fail(req, "", "aggregator id not configured")
		}
		return
	}

	result, err := r.aggregator.GetSimplePrice(ctx, ids)
	if err != nil {
		r.logger.WithError(err).WithField("ids", strings.Join(ids, ",")).Warn("aggregator request failed")
	}

	for _, req := range reqs {
		source := name + ":" + req.id
		if req.id == "" {
			fail(req, "", "aggregator id not configured")
			continue
		}
		if err != nil {
			fail(req, source, fmt.Sprintf("%s request failed: %v", name, err))
			continue
		}
		price, ok := result[req.id]
		switch {
		case !ok:
			fail(req, source, fmt.Sprintf("%s returned no price for %s", name, req.id))
		case !validPrice(price):
			fail(req, source, fmt.Sprintf("%s returned invalid price %v for %s", name, price, req.id))
		default:
			out[req.unit] = priced(price, source)
		}
	}
}

func (r *Resolver) fromCache(ctx context.Context, units []string, out map[string]Quote) []string {
	if r.cache == nil {
		return units
	}
	cached, err := r.cache.GetQuotes(ctx, units)
	if err != nil {
		r.logger.WithError(err).Warn("price cache read failed")
		return units
	}

	var misses []string
	for _, u := range units {
		if q, ok := cached[u]; ok && q.Resolved() {
			out[u] = q
			continue
		}
		misses = append(misses, u)
	}
	return misses
}

func (r *Resolver) toCache(ctx context.Context, quotes map[string]Quote) {
	if r.cache == nil {
		return
	}
	ok := make(map[string]Quote, len(quotes))
	for u, q := range quotes {
		if q.Resolved() && deref(q.Source) != "manual" {
			ok[u] = q
		}
	}
	if len(ok) == 0 {
		return
	}
	if err := r.cache.SetQuotes(ctx, ok); err != nil {
		r.logger.WithError(err).Warn("price cache write failed")
	}
}

func dedupe(units []string) []string {
	seen := make(map[string]bool, len(units))
	out := make([]string, 0, len(units))
	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
