package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardano-portfolio/internal/logging"
	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/quantity"
	"github.com/cardano-portfolio/internal/rebalance"
	"github.com/cardano-portfolio/internal/storage"
	"github.com/cardano-portfolio/internal/types"
	"github.com/cardano-portfolio/internal/valuation"
)

// evaluatePageSize is how many active wallets EvaluateActive loads at a time
const evaluatePageSize = 200

// EvaluateResult summarizes one evaluator run
type EvaluateResult struct {
	ProcessedWallets int      `json:"processedWallets"`
	AlertsSent       int      `json:"alertsSent"`
	Errors           []string `json:"errors"`
}

// AlertPayload is the body stored on an alert event and rendered into the message
type AlertPayload struct {
	WalletID     string                `json:"walletId"`
	StakeAddress string                `json:"stakeAddress"`
	DisplayName  string                `json:"displayName,omitempty"`
	SnapshotID   string                `json:"snapshotId"`
	Bucket       time.Time             `json:"bucket"`
	Basis        types.ThresholdBasis  `json:"basis"`
	Threshold    float64               `json:"thresholdPctPoints"`
	TotalValue   float64               `json:"totalValue"`
	Deviations   []valuation.Deviation `json:"deviations"`
	Plan         rebalance.Plan        `json:"plan"`
}

// AlertService evaluates wallets against their targets and notifies on drift.
// Wallets are evaluated one at a time.
type AlertService struct {
	wallets   storage.WalletStore
	targets   storage.TargetStore
	snapshots storage.SnapshotStore
	prices    storage.PriceSnapshotStore
	events    storage.AlertEventStore
	notifier  Notifier
	now       func() time.Time
}

// NewAlertService creates a new alert service
func NewAlertService(
	wallets storage.WalletStore,
	targets storage.TargetStore,
	snapshots storage.SnapshotStore,
	prices storage.PriceSnapshotStore,
	events storage.AlertEventStore,
	notifier Notifier,
) *AlertService {
	return &AlertService{
		wallets:   wallets,
		targets:   targets,
		snapshots: snapshots,
		prices:    prices,
		events:    events,
		notifier:  notifier,
		now:       time.Now,
	}
}

// EvaluateActive evaluates every active wallet, page by page
func (s *AlertService) EvaluateActive(ctx context.Context, bucket *time.Time) (*EvaluateResult, error) {
	total := &EvaluateResult{Errors: []string{}}
	for offset := 0; ; offset += evaluatePageSize {
		wallets, err := s.wallets.ListActive(ctx, offset, evaluatePageSize)
		if err != nil {
			return total, fmt.Errorf("failed to list wallets: %w", err)
		}

		res := s.Evaluate(ctx, wallets, bucket)
		total.ProcessedWallets += res.ProcessedWallets
		total.AlertsSent += res.AlertsSent
		total.Errors = append(total.Errors, res.Errors...)

		if len(wallets) < evaluatePageSize {
			return total, nil
		}
	}
}

// Evaluate checks each active wallet's snapshot for bucket, or its latest
// snapshot when bucket is nil. At most one alert event exists per
// (wallet, snapshot); it is stored before delivery is attempted and the
// delivery outcome is written back onto it.
func (s *AlertService) Evaluate(ctx context.Context, wallets []*models.Wallet, bucket *time.Time) *EvaluateResult {
	result := &EvaluateResult{Errors: []string{}}
	for _, w := range wallets {
		if !w.Active {
			continue
		}
		sent, err := s.evaluateWallet(ctx, w, bucket)
		if err != nil {
			logging.FromContext(ctx).WithComponent("alerts").WithField("wallet", w.ID).WithError(err).Error("Wallet evaluation failed")
			result.Errors = append(result.Errors, fmt.Sprintf("wallet %s: %v", w.ID, err))
			continue
		}
		result.ProcessedWallets++
		if sent {
			result.AlertsSent++
		}
	}
	return result
}

func (s *AlertService) evaluateWallet(ctx context.Context, w *models.Wallet, bucket *time.Time) (bool, error) {
	logger := logging.FromContext(ctx).WithComponent("alerts").WithField("wallet", w.ID)

	targetList, err := s.targets.ListByWallet(ctx, w.ID)
	if err != nil {
		return false, fmt.Errorf("load targets: %w", err)
	}
	if len(targetList) == 0 {
		logger.Debug("No targets configured; skipping")
		return false, nil
	}

	snap, err := s.selectSnapshot(ctx, w.ID, bucket)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Debug("No snapshot to evaluate; skipping")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	logger = logger.WithField("bucket", snap.Bucket.Format(time.RFC3339))

	exists, err := s.events.Exists(ctx, w.ID, snap.ID)
	if err != nil {
		return false, fmt.Errorf("check alert event: %w", err)
	}
	if exists {
		logger.Debug("Alert already recorded for snapshot; skipping")
		return false, nil
	}

	targetPct := models.TargetPctByUnit(targetList)
	payload, ok, err := s.buildPayload(ctx, w, snap, targetPct)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode alert payload: %w", err)
	}
	event := &models.AlertEvent{
		WalletID:                    w.ID,
		SnapshotID:                  snap.ID,
		DeviationThresholdPctPoints: w.DeviationThresholdPctPoints,
		Payload:                     body,
	}
	if err := s.events.Create(ctx, event); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			logger.Info("Alert recorded concurrently for snapshot; skipping delivery")
			return false, nil
		}
		return false, fmt.Errorf("store alert event: %w", err)
	}

	sendErr := s.notifier.Send(ctx, FormatAlertMessage(payload))
	var lastError *string
	if sendErr != nil {
		msg := sendErr.Error()
		lastError = &msg
		logger.WithError(sendErr).Warn("Alert delivery failed")
	}
	if err := s.events.MarkDelivery(ctx, event.ID, sendErr == nil, lastError, s.now()); err != nil {
		return sendErr == nil, fmt.Errorf("record alert delivery: %w", err)
	}
	if sendErr != nil {
		return false, fmt.Errorf("deliver alert: %w", sendErr)
	}

	logger.WithField("triggered", len(valuation.Triggered(payload.Deviations))).Info("Alert sent")
	return true, nil
}

func (s *AlertService) selectSnapshot(ctx context.Context, walletID string, bucket *time.Time) (*models.Snapshot, error) {
	if bucket != nil {
		return s.snapshots.GetByWalletAndBucket(ctx, walletID, types.HourBucket(*bucket))
	}
	return s.snapshots.GetLatest(ctx, walletID)
}

// buildPayload values the snapshot and plans a rebalance. ok is false when the
// wallet cannot be evaluated or nothing crossed the threshold.
func (s *AlertService) buildPayload(ctx context.Context, w *models.Wallet, snap *models.Snapshot, targetPct map[string]float64) (*AlertPayload, bool, error) {
	logger := logging.FromContext(ctx).WithComponent("alerts").WithField("wallet", w.ID)

	state, err := loadSnapshotState(ctx, s.snapshots, s.prices, snap, targetPct)
	if err != nil {
		return nil, false, err
	}

	eval := valuation.Evaluate(state.quantities, state.pricesUSD, w.ThresholdBasis)
	if !eval.Evaluable() {
		logger.Warn("Portfolio value is not positive; cannot evaluate deviations")
		return nil, false, nil
	}

	devs := valuation.Deviations(eval.CurrentPct, targetPct, w.DeviationThresholdPctPoints)
	if len(valuation.Triggered(devs)) == 0 {
		logger.Debug("All units within threshold")
		return nil, false, nil
	}

	plan := rebalance.Build(rebalance.Input{
		TotalValue:         eval.Total,
		CurrentValueByUnit: eval.Values,
		TargetPctByUnit:    targetPct,
		PriceByUnit:        valuation.BasisPrices(state.units, state.pricesUSD, w.ThresholdBasis),
		SwapFeeBps:         w.SwapFeeBps,
	})

	return &AlertPayload{
		WalletID:     w.ID,
		StakeAddress: w.StakeAddress,
		DisplayName:  w.DisplayName,
		SnapshotID:   snap.ID,
		Bucket:       snap.Bucket,
		Basis:        w.ThresholdBasis,
		Threshold:    w.DeviationThresholdPctPoints,
		TotalValue:   eval.Total,
		Deviations:   devs,
		Plan:         plan,
	}, true, nil
}

// snapshotState is what a stored snapshot contributes to a valuation
type snapshotState struct {
	units      []string
	quantities map[string]float64
	pricesUSD  map[string]*float64
}

// loadSnapshotState reads balances and the bucket's prices together
func loadSnapshotState(ctx context.Context, snapshots storage.SnapshotStore, prices storage.PriceSnapshotStore, snap *models.Snapshot, targetPct map[string]float64) (*snapshotState, error) {
	unitSet := map[string]bool{types.UnitLovelace: true, types.UnitBTC: true}
	for unit := range targetPct {
		unitSet[unit] = true
	}

	var (
		balances map[string][]models.SnapshotBalance
		stored   map[string]models.PriceSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances, err = snapshots.GetBalances(gctx, []string{snap.ID})
		if err != nil {
			return fmt.Errorf("load balances: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stored, err = prices.GetByBucket(gctx, snap.Bucket, sortedKeys(unitSet))
		if err != nil {
			return fmt.Errorf("load prices: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	state := &snapshotState{
		quantities: make(map[string]float64),
		pricesUSD:  make(map[string]*float64),
	}
	for _, b := range balances[snap.ID] {
		state.quantities[b.Unit] = quantity.ToHuman(b.RawQuantity, quantity.DecimalsFor(b.Unit, b.Decimals))
		unitSet[b.Unit] = true
	}
	for unit, p := range stored {
		price := p.PriceUSD
		state.pricesUSD[unit] = &price
	}
	state.units = sortedKeys(unitSet)
	return state, nil
}
