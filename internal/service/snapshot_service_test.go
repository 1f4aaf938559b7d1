package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/types"
)

func twoWalletFixture(t *testing.T) (*testStores, *mockBalanceProvider, *mockResolver, *models.Wallet, *models.Wallet) {
	t.Helper()
	ts := newTestStores()
	a := ts.addWallet(t, testAddrA, types.BasisUSD, 5, map[string]float64{types.UnitLovelace: 50, testUnitHosky: 50})
	b := ts.addWallet(t, testAddrB, types.BasisUSD, 5, map[string]float64{types.UnitLovelace: 70, testUnitHosky: 30})

	bp := &mockBalanceProvider{
		info: map[string]models.AccountBalance{
			testAddrA: {StakeAddress: testAddrA, TotalBalance: "1000000000"},
			testAddrB: {StakeAddress: testAddrB, TotalBalance: "250000000"},
		},
		assets: []models.AccountAsset{
			{StakeAddress: testAddrA, Unit: testUnitHosky, RawQuantity: "500000", Decimals: intPtr(0)},
		},
	}
	r := &mockResolver{prices: map[string]float64{
		types.UnitLovelace: 0.5,
		types.UnitBTC:      60000,
		testUnitHosky:      0.001,
	}}
	return ts, bp, r, a, b
}

func TestRunPage_IsIdempotentWithinBucket(t *testing.T) {
	ctx := context.Background()
	ts, bp, r, a, b := twoWalletFixture(t)
	svc := ts.snapshotService(bp, r)

	first, err := svc.RunPage(ctx, 0, 50, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	assert.Empty(t, first.Errors)
	assert.Equal(t, time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC), first.Bucket)

	snapA, err := ts.snapshots.GetLatest(ctx, a.ID)
	require.NoError(t, err)

	second, err := svc.RunPage(ctx, 0, 50, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Processed)

	assert.Equal(t, 2, ts.snapshots.Count(), "one snapshot per wallet per bucket")
	assert.Equal(t, 3, ts.prices.Count(), "one price per unit per bucket")

	again, err := ts.snapshots.GetLatest(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, snapA.ID, again.ID)

	snapB, err := ts.snapshots.GetLatest(ctx, b.ID)
	require.NoError(t, err)
	balances, err := ts.snapshots.GetBalances(ctx, []string{snapA.ID, snapB.ID})
	require.NoError(t, err)

	require.Len(t, balances[snapA.ID], 2)
	assert.Equal(t, "500000", balances[snapA.ID][0].RawQuantity)
	assert.Equal(t, "1000000000", balances[snapA.ID][1].RawQuantity)

	require.Len(t, balances[snapB.ID], 2)
	assert.Equal(t, testUnitHosky, balances[snapB.ID][0].Unit)
	assert.Equal(t, "0", balances[snapB.ID][0].RawQuantity, "monitored but not held")
}

func TestRunPage_PricesUnionOnce(t *testing.T) {
	ctx := context.Background()
	ts, bp, r, _, _ := twoWalletFixture(t)
	svc := ts.snapshotService(bp, r)

	_, err := svc.RunPage(ctx, 0, 50, testNow)
	require.NoError(t, err)

	require.Len(t, r.requested, 1, "prices resolve once per run")
	assert.Equal(t, []string{testUnitHosky, types.UnitBTC, types.UnitLovelace}, r.requested[0])
	assert.Equal(t, 1, bp.calls, "balances fetch once per run")

	stored, err := ts.prices.GetByBucket(ctx, types.HourBucket(testNow), []string{testUnitHosky})
	require.NoError(t, err)
	require.Contains(t, stored, testUnitHosky)
	assert.InDelta(t, 0.001, stored[testUnitHosky].PriceUSD, 1e-12)

	history, err := ts.prices.GetHistory(ctx, testUnitHosky, testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRunSnapshot_FetchFailureAborts(t *testing.T) {
	ctx := context.Background()
	ts, bp, r, _, _ := twoWalletFixture(t)
	bp.err = errors.New("koios unavailable")
	svc := ts.snapshotService(bp, r)

	res, err := svc.RunPage(ctx, 0, 50, testNow)
	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.CodeBalanceFetchError, svcErr.Code)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Processed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "koios unavailable")
	assert.Equal(t, 0, ts.snapshots.Count())
	assert.Equal(t, 0, ts.prices.Count())
}

func TestRunSnapshot_MissingWalletIsSkipped(t *testing.T) {
	ctx := context.Background()
	ts, bp, r, a, b := twoWalletFixture(t)
	delete(bp.info, testAddrB)
	svc := ts.snapshotService(bp, r)

	res, err := svc.RunPage(ctx, 0, 50, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], b.ID)

	_, err = ts.snapshots.GetLatest(ctx, a.ID)
	assert.NoError(t, err)
	_, err = ts.snapshots.GetLatest(ctx, b.ID)
	assert.Error(t, err)
}

func TestRunSnapshot_PriceFailureIsReported(t *testing.T) {
	ctx := context.Background()
	ts, bp, r, _, _ := twoWalletFixture(t)
	svc := NewSnapshotService(ts.wallets, ts.targets, ts.snapshots, failingPriceStore{ts.prices}, nil, bp, r)

	res, err := svc.RunPage(ctx, 0, 50, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed, "snapshots stay committed")
	assert.Equal(t, 0, res.PricesStored)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "price upsert failed")
	assert.Equal(t, 2, ts.snapshots.Count())
}

func TestRunSnapshot_UnresolvedPricesAreNotStored(t *testing.T) {
	ctx := context.Background()
	ts, bp, r, _, _ := twoWalletFixture(t)
	delete(r.prices, testUnitHosky)
	svc := ts.snapshotService(bp, r)

	res, err := svc.RunPage(ctx, 0, 50, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PricesStored)
	assert.Empty(t, res.Errors)
}

func TestRunSnapshot_NoWallets(t *testing.T) {
	ts := newTestStores()
	bp := &mockBalanceProvider{}
	svc := ts.snapshotService(bp, &mockResolver{})

	res, err := svc.RunSnapshot(context.Background(), SnapshotRequest{Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 0, bp.calls)
}

func TestRunPage_Pagination(t *testing.T) {
	ctx := context.Background()
	ts, bp, r, a, b := twoWalletFixture(t)
	svc := ts.snapshotService(bp, r)

	page, err := svc.RunPage(ctx, 0, 1, testNow)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, 1, page.NextOffset)
	assert.Equal(t, 1, page.Processed)
	_, err = ts.snapshots.GetLatest(ctx, a.ID)
	assert.NoError(t, err)

	page, err = svc.RunPage(ctx, page.NextOffset, 1, testNow)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Equal(t, 2, page.NextOffset)
	_, err = ts.snapshots.GetLatest(ctx, b.ID)
	assert.NoError(t, err)
}

func TestRunPage_InvalidParameters(t *testing.T) {
	ts := newTestStores()
	svc := ts.snapshotService(&mockBalanceProvider{}, &mockResolver{})

	for _, tc := range []struct{ offset, limit int }{{-1, 10}, {0, 0}} {
		_, err := svc.RunPage(context.Background(), tc.offset, tc.limit, testNow)
		var svcErr *types.ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, types.CodeInvalidParameter, svcErr.Code)
	}
}

func TestIndexAssets_SumsDuplicateRows(t *testing.T) {
	idx := indexAssets([]models.AccountAsset{
		{StakeAddress: testAddrA, Unit: testUnitHosky, RawQuantity: "100", Decimals: intPtr(0)},
		{StakeAddress: testAddrA, Unit: testUnitHosky, RawQuantity: "250"},
	})
	got := idx[testAddrA][testUnitHosky]
	assert.Equal(t, "350", got.RawQuantity)
	require.NotNil(t, got.Decimals)
	assert.Equal(t, 0, *got.Decimals)
}
