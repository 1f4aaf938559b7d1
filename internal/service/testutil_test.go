package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/pricing"
	"github.com/cardano-portfolio/internal/storage/memory"
	"github.com/cardano-portfolio/internal/types"
)

// Mock collaborators for testing

type mockBalanceProvider struct {
	mu     sync.Mutex
	info   map[string]models.AccountBalance
	assets []models.AccountAsset
	err    error
	calls  int
}

func (m *mockBalanceProvider) GetAccountInfo(ctx context.Context, addresses []string) (map[string]models.AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]models.AccountBalance)
	for _, addr := range addresses {
		if b, ok := m.info[addr]; ok {
			out[addr] = b
		}
	}
	return out, nil
}

func (m *mockBalanceProvider) GetAccountAssets(ctx context.Context, addresses []string) ([]models.AccountAsset, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.assets, nil
}

type mockResolver struct {
	mu        sync.Mutex
	prices    map[string]float64
	requested [][]string
}

func (m *mockResolver) ResolvePrices(ctx context.Context, units []string) map[string]pricing.Quote {
	m.mu.Lock()
	m.requested = append(m.requested, units)
	m.mu.Unlock()

	out := make(map[string]pricing.Quote, len(units))
	for _, unit := range units {
		if p, ok := m.prices[unit]; ok {
			price, source := p, "test"
			out[unit] = pricing.Quote{PriceUSD: &price, Source: &source}
			continue
		}
		msg := "no token definition"
		out[unit] = pricing.Quote{Error: &msg}
	}
	return out
}

type mockNotifier struct {
	messages []string
	err      error
}

func (m *mockNotifier) Send(ctx context.Context, text string) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, text)
	return nil
}

// failingPriceStore wraps the memory store and fails every write
type failingPriceStore struct {
	*memory.PriceSnapshotStore
}

func (f failingPriceStore) Upsert(ctx context.Context, prices []models.PriceSnapshot) error {
	return errors.New("price table unavailable")
}

// failingAlertStore wraps the memory store and fails every create
type failingAlertStore struct {
	*memory.AlertEventStore
}

func (f failingAlertStore) Create(ctx context.Context, event *models.AlertEvent) error {
	return errors.New("alert table unavailable")
}

const (
	testUnitHosky = "a0028f350aaabe0545fdcb56b039bfb08e4bb4d8c4d7c3c7d481c235484f534b59"
	testAddrA     = "stake1uyaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testAddrB     = "stake1uybbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

var testNow = time.Date(2026, 3, 14, 15, 42, 10, 0, time.UTC)

type testStores struct {
	wallets   *memory.WalletStore
	targets   *memory.TargetStore
	snapshots *memory.SnapshotStore
	prices    *memory.PriceSnapshotStore
	events    *memory.AlertEventStore
	tokens    *memory.TokenDefinitionStore
}

func newTestStores() *testStores {
	return &testStores{
		wallets:   memory.NewWalletStore(),
		targets:   memory.NewTargetStore(),
		snapshots: memory.NewSnapshotStore(),
		prices:    memory.NewPriceSnapshotStore(),
		events:    memory.NewAlertEventStore(),
		tokens:    memory.NewTokenDefinitionStore(),
	}
}

// addWallet creates a wallet with the given basis and threshold and sets its targets
func (ts *testStores) addWallet(t *testing.T, addr string, basis types.ThresholdBasis, threshold float64, targets map[string]float64) *models.Wallet {
	t.Helper()
	ctx := context.Background()

	w, err := ts.wallets.CreateOrReactivate(ctx, &models.Wallet{
		StakeAddress:                addr,
		ThresholdBasis:              basis,
		DeviationThresholdPctPoints: threshold,
	})
	require.NoError(t, err)

	var rows []models.Target
	for unit, pct := range targets {
		rows = append(rows, models.Target{WalletID: w.ID, Unit: unit, TargetPct: pct})
	}
	require.NoError(t, ts.targets.Replace(ctx, w.ID, rows))
	return w
}

func (ts *testStores) snapshotService(bp BalanceProvider, r PriceResolver) *SnapshotService {
	return NewSnapshotService(ts.wallets, ts.targets, ts.snapshots, ts.prices, ts.prices, bp, r)
}

func intPtr(v int) *int { return &v }
