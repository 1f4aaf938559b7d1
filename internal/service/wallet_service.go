package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cardano-portfolio/internal/config"
	apperrors "github.com/cardano-portfolio/internal/errors"
	"github.com/cardano-portfolio/internal/logging"
	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/storage"
	"github.com/cardano-portfolio/internal/types"
)

// targetSumTolerance is how far a target set may drift from 100 and still be accepted
const targetSumTolerance = 0.01

// Default settings for newly tracked wallets
const (
	DefaultThresholdPctPoints = 5.0
	DefaultSwapFeeBps         = 30.0
)

// WalletService manages wallets, their targets and token definitions
type WalletService struct {
	wallets storage.WalletStore
	targets storage.TargetStore
	tokens  storage.TokenDefinitionStore
}

// NewWalletService creates a new wallet service
func NewWalletService(wallets storage.WalletStore, targets storage.TargetStore, tokens storage.TokenDefinitionStore) *WalletService {
	return &WalletService{
		wallets: wallets,
		targets: targets,
		tokens:  tokens,
	}
}

// CreateWalletInput represents input for tracking a wallet
type CreateWalletInput struct {
	StakeAddress string `json:"stakeAddress"`
	DisplayName  string `json:"displayName"`
}

// UpdateSettingsInput represents a partial settings update
type UpdateSettingsInput struct {
	ThresholdBasis              *string  `json:"thresholdBasis,omitempty"`
	DeviationThresholdPctPoints *float64 `json:"deviationThresholdPctPoints,omitempty"`
	SwapFeeBps                  *float64 `json:"swapFeeBps,omitempty"`
	DisplayName                 *string  `json:"displayName,omitempty"`
}

// TargetInput is one requested target allocation
type TargetInput struct {
	Unit      string  `json:"unit"`
	TargetPct float64 `json:"targetPct"`
}

// CreateWallet tracks a stake address, reactivating it if it was deactivated.
// A reactivated wallet keeps its settings and targets.
func (s *WalletService) CreateWallet(ctx context.Context, input *CreateWalletInput) (*models.Wallet, error) {
	addr := strings.TrimSpace(input.StakeAddress)
	if !strings.HasPrefix(addr, "stake") {
		return nil, apperrors.NewInvalidParameterError("stakeAddress", "must be a bech32 stake address")
	}

	w, err := s.wallets.CreateOrReactivate(ctx, &models.Wallet{
		StakeAddress:                addr,
		DisplayName:                 strings.TrimSpace(input.DisplayName),
		Active:                      true,
		ThresholdBasis:              types.BasisUSD,
		DeviationThresholdPctPoints: DefaultThresholdPctPoints,
		SwapFeeBps:                  DefaultSwapFeeBps,
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("create wallet", err)
	}

	logging.FromContext(ctx).WithComponent("wallets").WithFields(map[string]interface{}{
		"wallet":       w.ID,
		"stakeAddress": w.StakeAddress,
	}).Info("Wallet tracked")
	return w, nil
}

// GetWallet returns a wallet by id
func (s *WalletService) GetWallet(ctx context.Context, id string) (*models.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, id)
	if err != nil {
		return nil, walletLookupError(id, err)
	}
	return w, nil
}

// ListActive returns a page of active wallets
func (s *WalletService) ListActive(ctx context.Context, offset, limit int) ([]*models.Wallet, error) {
	if offset < 0 {
		return nil, apperrors.NewInvalidParameterError("offset", "must be >= 0")
	}
	if limit <= 0 || limit > 500 {
		return nil, apperrors.NewInvalidParameterError("limit", "must be between 1 and 500")
	}
	wallets, err := s.wallets.ListActive(ctx, offset, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list wallets", err)
	}
	return wallets, nil
}

// UpdateSettings validates and applies a partial settings update
func (s *WalletService) UpdateSettings(ctx context.Context, id string, input *UpdateSettingsInput) (*models.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, id)
	if err != nil {
		return nil, walletLookupError(id, err)
	}

	if input.ThresholdBasis != nil {
		basis, ok := types.ParseThresholdBasis(*input.ThresholdBasis)
		if !ok {
			return nil, apperrors.NewInvalidParameterError("thresholdBasis", "must be one of usd, ada, btc, holdings")
		}
		w.ThresholdBasis = basis
	}
	if input.DeviationThresholdPctPoints != nil {
		v := *input.DeviationThresholdPctPoints
		if math.IsNaN(v) || v < 0 || v > 100 {
			return nil, apperrors.NewInvalidParameterError("deviationThresholdPctPoints", "must be between 0 and 100")
		}
		w.DeviationThresholdPctPoints = v
	}
	if input.SwapFeeBps != nil {
		v := *input.SwapFeeBps
		if math.IsNaN(v) || v < 0 || v >= 10000 {
			return nil, apperrors.NewInvalidParameterError("swapFeeBps", "must be >= 0 and below 10000")
		}
		w.SwapFeeBps = v
	}
	if input.DisplayName != nil {
		w.DisplayName = strings.TrimSpace(*input.DisplayName)
	}

	updated, err := s.wallets.UpdateSettings(ctx, w)
	if err != nil {
		return nil, walletLookupError(id, err)
	}
	return updated, nil
}

// Deactivate stops tracking a wallet without deleting its history
func (s *WalletService) Deactivate(ctx context.Context, id string) error {
	if err := s.wallets.Deactivate(ctx, id); err != nil {
		return walletLookupError(id, err)
	}
	logging.FromContext(ctx).WithComponent("wallets").WithField("wallet", id).Info("Wallet deactivated")
	return nil
}

// ValidateTargets rejects target sets that are not a complete allocation.
// Percentages must each be >= 0, units must be unique and the sum must be 100.
// An empty set is valid and clears the wallet's targets.
func ValidateTargets(targets []TargetInput) error {
	if len(targets) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(targets))
	sum := 0.0
	for _, t := range targets {
		unit := strings.TrimSpace(t.Unit)
		if unit == "" {
			return apperrors.NewInvalidParameterError("unit", "must not be empty")
		}
		if seen[unit] {
			return apperrors.NewDuplicateTargetError(unit)
		}
		seen[unit] = true
		if math.IsNaN(t.TargetPct) || t.TargetPct < 0 {
			return apperrors.NewInvalidParameterError("targetPct", fmt.Sprintf("%s must be >= 0", unit))
		}
		sum += t.TargetPct
	}
	if math.Abs(sum-100) > targetSumTolerance {
		return apperrors.NewTargetsSumError(sum)
	}
	return nil
}

// ReplaceTargets validates the full target set and swaps it in atomically
func (s *WalletService) ReplaceTargets(ctx context.Context, walletID string, input []TargetInput) ([]models.Target, error) {
	if _, err := s.wallets.GetByID(ctx, walletID); err != nil {
		return nil, walletLookupError(walletID, err)
	}
	if err := ValidateTargets(input); err != nil {
		return nil, err
	}

	targets := make([]models.Target, 0, len(input))
	for _, t := range input {
		targets = append(targets, models.Target{
			WalletID:  walletID,
			Unit:      strings.TrimSpace(t.Unit),
			TargetPct: t.TargetPct,
		})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Unit < targets[j].Unit })

	if err := s.targets.Replace(ctx, walletID, targets); err != nil {
		return nil, apperrors.NewDatabaseError("replace targets", err)
	}
	return targets, nil
}

// ListTargets returns a wallet's targets
func (s *WalletService) ListTargets(ctx context.Context, walletID string) ([]models.Target, error) {
	if _, err := s.wallets.GetByID(ctx, walletID); err != nil {
		return nil, walletLookupError(walletID, err)
	}
	targets, err := s.targets.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list targets", err)
	}
	return targets, nil
}

// UpsertTokenDefinition validates the source-specific keys and stores a definition
func (s *WalletService) UpsertTokenDefinition(ctx context.Context, def *models.TokenDefinition) (*models.TokenDefinition, error) {
	def.Unit = strings.TrimSpace(def.Unit)
	if def.Unit == "" {
		return nil, apperrors.NewInvalidParameterError("unit", "must not be empty")
	}
	if def.Decimals != nil && (*def.Decimals < 0 || *def.Decimals > 30) {
		return nil, apperrors.NewInvalidParameterError("decimals", "must be between 0 and 30")
	}

	switch def.PriceSource {
	case types.SourceTicker:
		if derefString(def.TickerPair) == "" {
			return nil, apperrors.NewInvalidParameterError("tickerPair", "required for the ticker source")
		}
	case types.SourceAggregator:
		if derefString(def.AggregatorID) == "" {
			return nil, apperrors.NewInvalidParameterError("aggregatorId", "required for the aggregator source")
		}
	case types.SourceManual:
		if def.ManualPriceUSD == nil || !positivePrice(*def.ManualPriceUSD) {
			return nil, apperrors.NewInvalidParameterError("manualPriceUsd", "required and > 0 for the manual source")
		}
	default:
		return nil, apperrors.NewInvalidParameterError("priceSource", "must be one of ticker, aggregator, manual")
	}

	if err := s.tokens.Upsert(ctx, def); err != nil {
		return nil, apperrors.NewDatabaseError("upsert token definition", err)
	}
	return def, nil
}

// ListTokenDefinitions returns every token definition
func (s *WalletService) ListTokenDefinitions(ctx context.Context) ([]*models.TokenDefinition, error) {
	defs, err := s.tokens.List(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list token definitions", err)
	}
	return defs, nil
}

// LoadManualPrices writes configured overrides into the token definition store once at startup
func (s *WalletService) LoadManualPrices(ctx context.Context, prices []config.ManualPrice) error {
	for _, p := range prices {
		if !positivePrice(p.PriceUSD) {
			return apperrors.NewInvalidParameterError("manualPriceUsd", fmt.Sprintf("%s must be > 0", p.Unit))
		}
		if err := s.tokens.SetManualPrice(ctx, p.Unit, p.PriceUSD); err != nil {
			return fmt.Errorf("failed to set manual price for %s: %w", p.Unit, err)
		}
	}
	if len(prices) > 0 {
		logging.FromContext(ctx).WithComponent("wallets").WithField("count", len(prices)).Info("Loaded manual price overrides")
	}
	return nil
}

func positivePrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

func walletLookupError(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &types.ServiceError{
			Code:    types.CodeWalletNotFound,
			Message: fmt.Sprintf("wallet not found: %s", id),
			Details: map[string]interface{}{
				"walletId": id,
			},
		}
	}
	return apperrors.NewDatabaseError("load wallet", err)
}
