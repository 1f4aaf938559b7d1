package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/cardano-portfolio/internal/errors"
	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/quantity"
	"github.com/cardano-portfolio/internal/rebalance"
	"github.com/cardano-portfolio/internal/storage"
	"github.com/cardano-portfolio/internal/types"
	"github.com/cardano-portfolio/internal/valuation"
)

// Window limits for history queries
const (
	DefaultHistoryWindow = 7 * 24 * time.Hour
	MaxHistoryWindow     = 366 * 24 * time.Hour
)

// PortfolioService serves the read side: current allocation, history and prices
type PortfolioService struct {
	wallets   storage.WalletStore
	targets   storage.TargetStore
	snapshots storage.SnapshotStore
	prices    storage.PriceSnapshotStore
	history   storage.PriceHistoryStore
	events    storage.AlertEventStore
	now       func() time.Time
}

// NewPortfolioService creates a new portfolio service. history may be nil, in
// which case price history is read from the price snapshot store.
func NewPortfolioService(
	wallets storage.WalletStore,
	targets storage.TargetStore,
	snapshots storage.SnapshotStore,
	prices storage.PriceSnapshotStore,
	history storage.PriceHistoryStore,
	events storage.AlertEventStore,
) *PortfolioService {
	return &PortfolioService{
		wallets:   wallets,
		targets:   targets,
		snapshots: snapshots,
		prices:    prices,
		history:   history,
		events:    events,
		now:       time.Now,
	}
}

// AllocationView is a wallet's allocation at its latest snapshot
type AllocationView struct {
	WalletID   string                `json:"walletId"`
	SnapshotID string                `json:"snapshotId"`
	Bucket     time.Time             `json:"bucket"`
	Basis      types.ThresholdBasis  `json:"basis"`
	Threshold  float64               `json:"thresholdPctPoints"`
	Quantities map[string]float64    `json:"quantities"`
	PricesUSD  map[string]*float64   `json:"pricesUsd"`
	Values     map[string]float64    `json:"values"`
	TotalValue float64               `json:"totalValue"`
	CurrentPct map[string]float64    `json:"currentPct"`
	Deviations []valuation.Deviation `json:"deviations"`
	Plan       rebalance.Plan        `json:"plan"`
}

// AllocationPoint is one bucket of an allocation history series
type AllocationPoint struct {
	Bucket     time.Time          `json:"bucket"`
	TotalValue float64            `json:"totalValue"`
	CurrentPct map[string]float64 `json:"currentPct"`
}

// SnapshotView is a stored snapshot with its balances
type SnapshotView struct {
	*models.Snapshot
	Balances []models.SnapshotBalance `json:"balances"`
}

// CurrentAllocation values the wallet's latest snapshot under its basis and
// plans a rebalance against its targets
func (s *PortfolioService) CurrentAllocation(ctx context.Context, walletID string) (*AllocationView, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, walletLookupError(walletID, err)
	}

	snap, err := s.snapshots.GetLatest(ctx, walletID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &types.ServiceError{
			Code:    types.CodeSnapshotNotFound,
			Message: fmt.Sprintf("no snapshot for wallet: %s", walletID),
			Details: map[string]interface{}{
				"walletId": walletID,
			},
		}
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load snapshot", err)
	}

	targetList, err := s.targets.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load targets", err)
	}
	targetPct := models.TargetPctByUnit(targetList)

	state, err := loadSnapshotState(ctx, s.snapshots, s.prices, snap, targetPct)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load snapshot state", err)
	}

	eval := valuation.Evaluate(state.quantities, state.pricesUSD, w.ThresholdBasis)
	view := &AllocationView{
		WalletID:   w.ID,
		SnapshotID: snap.ID,
		Bucket:     snap.Bucket,
		Basis:      w.ThresholdBasis,
		Threshold:  w.DeviationThresholdPctPoints,
		Quantities: state.quantities,
		PricesUSD:  state.pricesUSD,
		Values:     eval.Values,
		TotalValue: eval.Total,
		CurrentPct: eval.CurrentPct,
		Deviations: []valuation.Deviation{},
	}
	if eval.Evaluable() {
		view.Deviations = valuation.Deviations(eval.CurrentPct, targetPct, w.DeviationThresholdPctPoints)
	}
	view.Plan = rebalance.Build(rebalance.Input{
		TotalValue:         eval.Total,
		CurrentValueByUnit: eval.Values,
		TargetPctByUnit:    targetPct,
		PriceByUnit:        valuation.BasisPrices(state.units, state.pricesUSD, w.ThresholdBasis),
		SwapFeeBps:         w.SwapFeeBps,
	})
	return view, nil
}

// AllocationHistory returns one allocation point per stored snapshot in [from, to]
func (s *PortfolioService) AllocationHistory(ctx context.Context, walletID string, from, to *time.Time) ([]AllocationPoint, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, walletLookupError(walletID, err)
	}
	start, end, err := s.window(from, to)
	if err != nil {
		return nil, err
	}

	snaps, err := s.snapshots.ListByWallet(ctx, walletID, start, end)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list snapshots", err)
	}
	if len(snaps) == 0 {
		return []AllocationPoint{}, nil
	}

	ids := make([]string, len(snaps))
	for i, snap := range snaps {
		ids[i] = snap.ID
	}
	balances, err := s.snapshots.GetBalances(ctx, ids)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load balances", err)
	}

	unitSet := map[string]bool{types.UnitLovelace: true, types.UnitBTC: true}
	for _, rows := range balances {
		for _, b := range rows {
			unitSet[b.Unit] = true
		}
	}
	priceRows, err := s.prices.ListByRange(ctx, sortedKeys(unitSet), start, end)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load prices", err)
	}
	pricesByBucket := make(map[int64]map[string]*float64)
	for _, p := range priceRows {
		key := p.Bucket.Unix()
		if pricesByBucket[key] == nil {
			pricesByBucket[key] = make(map[string]*float64)
		}
		price := p.PriceUSD
		pricesByBucket[key][p.Unit] = &price
	}

	points := make([]AllocationPoint, 0, len(snaps))
	for _, snap := range snaps {
		quantities := make(map[string]float64)
		for _, b := range balances[snap.ID] {
			quantities[b.Unit] = quantity.ToHuman(b.RawQuantity, quantity.DecimalsFor(b.Unit, b.Decimals))
		}
		eval := valuation.Evaluate(quantities, pricesByBucket[snap.Bucket.Unix()], w.ThresholdBasis)
		points = append(points, AllocationPoint{
			Bucket:     snap.Bucket,
			TotalValue: eval.Total,
			CurrentPct: eval.CurrentPct,
		})
	}
	return points, nil
}

// ListSnapshots returns the wallet's snapshots in [from, to] with balances
func (s *PortfolioService) ListSnapshots(ctx context.Context, walletID string, from, to *time.Time) ([]SnapshotView, error) {
	if _, err := s.wallets.GetByID(ctx, walletID); err != nil {
		return nil, walletLookupError(walletID, err)
	}
	start, end, err := s.window(from, to)
	if err != nil {
		return nil, err
	}

	snaps, err := s.snapshots.ListByWallet(ctx, walletID, start, end)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list snapshots", err)
	}
	ids := make([]string, len(snaps))
	for i, snap := range snaps {
		ids[i] = snap.ID
	}
	balances := map[string][]models.SnapshotBalance{}
	if len(ids) > 0 {
		balances, err = s.snapshots.GetBalances(ctx, ids)
		if err != nil {
			return nil, apperrors.NewDatabaseError("load balances", err)
		}
	}

	out := make([]SnapshotView, 0, len(snaps))
	for _, snap := range snaps {
		rows := balances[snap.ID]
		if rows == nil {
			rows = []models.SnapshotBalance{}
		}
		out = append(out, SnapshotView{Snapshot: snap, Balances: rows})
	}
	return out, nil
}

// PriceHistory returns stored USD prices for one unit in [from, to], oldest first
func (s *PortfolioService) PriceHistory(ctx context.Context, unit string, from, to *time.Time) ([]models.PriceSnapshot, error) {
	if unit == "" {
		return nil, apperrors.NewInvalidParameterError("unit", "must not be empty")
	}
	start, end, err := s.window(from, to)
	if err != nil {
		return nil, err
	}

	var rows []models.PriceSnapshot
	if s.history != nil {
		rows, err = s.history.GetHistory(ctx, unit, start, end)
	} else {
		rows, err = s.prices.ListByRange(ctx, []string{unit}, start, end)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load price history", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Bucket.Before(rows[j].Bucket) })
	if rows == nil {
		rows = []models.PriceSnapshot{}
	}
	return rows, nil
}

// ListAlerts returns the wallet's most recent alert events
func (s *PortfolioService) ListAlerts(ctx context.Context, walletID string, limit int) ([]*models.AlertEvent, error) {
	if _, err := s.wallets.GetByID(ctx, walletID); err != nil {
		return nil, walletLookupError(walletID, err)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	events, err := s.events.ListByWallet(ctx, walletID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list alerts", err)
	}
	return events, nil
}

// window resolves an optional [from, to] range, defaulting to the last week
func (s *PortfolioService) window(from, to *time.Time) (time.Time, time.Time, error) {
	end := s.now().UTC()
	if to != nil {
		end = to.UTC()
	}
	start := end.Add(-DefaultHistoryWindow)
	if from != nil {
		start = from.UTC()
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, apperrors.NewInvalidParameterError("from", "must not be after to")
	}
	if end.Sub(start) > MaxHistoryWindow {
		return time.Time{}, time.Time{}, apperrors.NewInvalidParameterError("from", "window must not exceed 366 days")
	}
	return start, end, nil
}
