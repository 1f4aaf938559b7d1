package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardano-portfolio/internal/logging"
	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/pricing"
	"github.com/cardano-portfolio/internal/quantity"
	"github.com/cardano-portfolio/internal/storage"
	"github.com/cardano-portfolio/internal/types"
)

// SnapshotRequest is one invocation of the snapshot pipeline
type SnapshotRequest struct {
	Wallets []*models.Wallet

	// MonitoredUnits lists, per wallet id, the units whose balances are stored.
	// Lovelace is always stored in addition.
	MonitoredUnits map[string][]string

	// UnitsToPrice is the union of units priced once for the whole run
	UnitsToPrice []string
	Now          time.Time
}

// SnapshotResult reports what a run persisted. Errors lists partial failures.
type SnapshotResult struct {
	Processed    int       `json:"processed"`
	PricesStored int       `json:"pricesStored"`
	Errors       []string  `json:"errors"`
	Bucket       time.Time `json:"bucket"`
}

// PageResult is a paginated snapshot run
type PageResult struct {
	SnapshotResult
	HasMore    bool `json:"hasMore"`
	NextOffset int  `json:"nextOffset"`
}

// SnapshotService records hourly wallet balances and the prices needed to value them
type SnapshotService struct {
	wallets   storage.WalletStore
	targets   storage.TargetStore
	snapshots storage.SnapshotStore
	prices    storage.PriceSnapshotStore
	history   storage.PriceHistoryStore
	balances  BalanceProvider
	resolver  PriceResolver
}

// NewSnapshotService creates a new snapshot service. history may be nil.
func NewSnapshotService(
	wallets storage.WalletStore,
	targets storage.TargetStore,
	snapshots storage.SnapshotStore,
	prices storage.PriceSnapshotStore,
	history storage.PriceHistoryStore,
	balances BalanceProvider,
	resolver PriceResolver,
) *SnapshotService {
	return &SnapshotService{
		wallets:   wallets,
		targets:   targets,
		snapshots: snapshots,
		prices:    prices,
		history:   history,
		balances:  balances,
		resolver:  resolver,
	}
}

// RunSnapshot fetches balances for every wallet in one batch, upserts one snapshot
// per wallet for the hour bucket of req.Now and stores one price per (bucket, unit).
//
// A failed batch fetch aborts the run with nothing processed and the error
// returned. A wallet missing from the fetch result is reported and skipped.
// Persistence failures are reported in Errors and nothing already written is
// rolled back.
func (s *SnapshotService) RunSnapshot(ctx context.Context, req SnapshotRequest) (*SnapshotResult, error) {
	bucket := types.HourBucket(req.Now)
	result := &SnapshotResult{Errors: []string{}, Bucket: bucket}
	logger := logging.FromContext(ctx).WithComponent("snapshot").WithField("bucket", bucket.Format(time.RFC3339))

	if len(req.Wallets) == 0 {
		return result, nil
	}

	addresses := make([]string, 0, len(req.Wallets))
	for _, w := range req.Wallets {
		addresses = append(addresses, w.StakeAddress)
	}

	var (
		info   map[string]models.AccountBalance
		assets []models.AccountAsset
		quotes map[string]pricing.Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.balances.GetAccountInfo(gctx, addresses)
		return err
	})
	g.Go(func() error {
		var err error
		assets, err = s.balances.GetAccountAssets(gctx, addresses)
		return err
	})
	g.Go(func() error {
		quotes = s.resolver.ResolvePrices(gctx, req.UnitsToPrice)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Balance fetch failed; aborting snapshot run")
		result.Errors = append(result.Errors, fmt.Sprintf("balance fetch failed: %v", err))
		return result, &types.ServiceError{
			Code:    types.CodeBalanceFetchError,
			Message: fmt.Sprintf("balance fetch failed: %v", err),
			Details: map[string]interface{}{"wallets": len(addresses)},
		}
	}

	assetsByAddress := indexAssets(assets)

	var present []*models.Wallet
	for _, w := range req.Wallets {
		if _, ok := info[w.StakeAddress]; !ok {
			msg := fmt.Sprintf("wallet %s: no balance record for %s", w.ID, w.StakeAddress)
			logger.WithField("wallet", w.ID).Warn(msg)
			result.Errors = append(result.Errors, msg)
			continue
		}
		present = append(present, w)
	}

	ids := make([]string, 0, len(present))
	for _, w := range present {
		ids = append(ids, w.ID)
	}
	snaps, err := s.snapshots.Upsert(ctx, ids, bucket)
	if err != nil {
		logger.WithError(err).Error("Snapshot upsert failed")
		result.Errors = append(result.Errors, fmt.Sprintf("snapshot upsert failed: %v", err))
	}

	for _, w := range present {
		snap, ok := snaps[w.ID]
		if !ok {
			continue
		}
		rows := balanceRows(snap.ID, info[w.StakeAddress], assetsByAddress[w.StakeAddress], req.MonitoredUnits[w.ID])
		if err := s.snapshots.UpsertBalances(ctx, rows); err != nil {
			msg := fmt.Sprintf("wallet %s: balance upsert failed: %v", w.ID, err)
			logger.WithField("wallet", w.ID).WithError(err).Error("Balance upsert failed")
			result.Errors = append(result.Errors, msg)
			continue
		}
		result.Processed++
	}

	rows := priceRows(bucket, quotes)
	for unit, q := range quotes {
		if !q.Resolved() {
			logger.WithFields(map[string]interface{}{"unit": unit, "reason": derefString(q.Error)}).Warn("Price unavailable")
		}
	}
	if err := s.prices.Upsert(ctx, rows); err != nil {
		logger.WithError(err).Error("Price snapshot upsert failed")
		result.Errors = append(result.Errors, fmt.Sprintf("price upsert failed: %v", err))
	} else {
		result.PricesStored = len(rows)
		s.mirrorHistory(ctx, logger, rows)
	}

	logger.WithFields(map[string]interface{}{
		"wallets":   len(req.Wallets),
		"processed": result.Processed,
		"prices":    result.PricesStored,
		"errors":    len(result.Errors),
	}).Info("Snapshot run complete")
	return result, nil
}

// mirrorHistory copies prices into the time-series store; failures only log
func (s *SnapshotService) mirrorHistory(ctx context.Context, logger *logging.Logger, rows []models.PriceSnapshot) {
	if s.history == nil || len(rows) == 0 {
		return
	}
	if err := s.history.Insert(ctx, rows); err != nil {
		logger.WithError(err).Warn("Price history mirror failed")
	}
}

// RunPage snapshots one page of active wallets into the bucket of now. Callers
// paging through one cycle pass the same now to every page. Monitored units come
// from each wallet's targets; the priced units are their union plus the two
// reference units.
func (s *SnapshotService) RunPage(ctx context.Context, offset, limit int, now time.Time) (*PageResult, error) {
	if offset < 0 || limit <= 0 {
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidParameter,
			Message: "offset must be >= 0 and limit > 0",
			Details: map[string]interface{}{"offset": offset, "limit": limit},
		}
	}

	wallets, err := s.wallets.ListActive(ctx, offset, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	hasMore := len(wallets) > limit
	if hasMore {
		wallets = wallets[:limit]
	}

	ids := make([]string, 0, len(wallets))
	for _, w := range wallets {
		ids = append(ids, w.ID)
	}
	targets, err := s.targets.ListByWallets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	monitored := make(map[string][]string, len(wallets))
	priceSet := map[string]bool{types.UnitLovelace: true, types.UnitBTC: true}
	for _, w := range wallets {
		for _, t := range targets[w.ID] {
			monitored[w.ID] = append(monitored[w.ID], t.Unit)
			priceSet[t.Unit] = true
		}
	}

	res, err := s.RunSnapshot(ctx, SnapshotRequest{
		Wallets:        wallets,
		MonitoredUnits: monitored,
		UnitsToPrice:   sortedKeys(priceSet),
		Now:            now,
	})
	if res == nil {
		return nil, err
	}

	page := &PageResult{SnapshotResult: *res, HasMore: hasMore, NextOffset: offset + len(wallets)}
	return page, err
}

// indexAssets groups assets by stake address and unit, summing duplicate rows exactly
func indexAssets(assets []models.AccountAsset) map[string]map[string]models.AccountAsset {
	out := make(map[string]map[string]models.AccountAsset)
	for _, a := range assets {
		units, ok := out[a.StakeAddress]
		if !ok {
			units = make(map[string]models.AccountAsset)
			out[a.StakeAddress] = units
		}
		if prev, dup := units[a.Unit]; dup {
			a.RawQuantity = quantity.Sum(prev.RawQuantity, a.RawQuantity)
			if a.Decimals == nil {
				a.Decimals = prev.Decimals
			}
		}
		units[a.Unit] = a
	}
	return out
}

// balanceRows builds the stored balances for one wallet: lovelace plus every
// monitored unit, with "0" for units the wallet does not hold
func balanceRows(snapshotID string, info models.AccountBalance, held map[string]models.AccountAsset, monitored []string) []models.SnapshotBalance {
	lovelace := info.TotalBalance
	if lovelace == "" {
		lovelace = "0"
	}
	rows := []models.SnapshotBalance{{
		SnapshotID:  snapshotID,
		Unit:        types.UnitLovelace,
		RawQuantity: lovelace,
		Decimals:    quantity.DecimalsFor(types.UnitLovelace, nil),
	}}

	seen := map[string]bool{types.UnitLovelace: true}
	for _, unit := range monitored {
		if seen[unit] {
			continue
		}
		seen[unit] = true

		row := models.SnapshotBalance{SnapshotID: snapshotID, Unit: unit, RawQuantity: "0"}
		if a, ok := held[unit]; ok {
			row.RawQuantity = a.RawQuantity
			row.Decimals = a.Decimals
		}
		rows = append(rows, row)
	}
	return rows
}

// priceRows keeps resolved quotes only, ordered by unit
func priceRows(bucket time.Time, quotes map[string]pricing.Quote) []models.PriceSnapshot {
	rows := make([]models.PriceSnapshot, 0, len(quotes))
	for unit, q := range quotes {
		if !q.Resolved() {
			continue
		}
		rows = append(rows, models.PriceSnapshot{
			Bucket:   bucket,
			Unit:     unit,
			PriceUSD: *q.PriceUSD,
			Source:   derefString(q.Source),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Unit < rows[j].Unit })
	return rows
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
