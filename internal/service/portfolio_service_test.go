package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cardano-portfolio/internal/errors"
	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/types"
)

func (ts *testStores) portfolioService() *PortfolioService {
	svc := NewPortfolioService(ts.wallets, ts.targets, ts.snapshots, ts.prices, ts.prices, ts.events)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestCurrentAllocation(t *testing.T) {
	ctx := context.Background()
	ts := newTestStores()
	w := ts.addWallet(t, testAddrA, types.BasisUSD, 5, fiftyFifty())
	snap := seedSnapshot(t, ts, w, types.HourBucket(testNow), "1000000000", "500000", 0.5, 0.003)

	view, err := ts.portfolioService().CurrentAllocation(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, view.SnapshotID)
	assert.InDelta(t, 2000, view.TotalValue, 1e-9)
	assert.InDelta(t, 25, view.CurrentPct[types.UnitLovelace], 1e-9)
	assert.InDelta(t, 75, view.CurrentPct[testUnitHosky], 1e-9)
	assert.InDelta(t, 1000, view.Quantities[types.UnitLovelace], 1e-9)
	require.Len(t, view.Deviations, 2)
	require.Len(t, view.Plan.Suggestions, 1)
	assert.InDelta(t, 500, view.Plan.Suggestions[0].TradeValue, 1e-6)
}

func TestCurrentAllocation_ReferenceBasis(t *testing.T) {
	ctx := context.Background()
	ts := newTestStores()
	w := ts.addWallet(t, testAddrA, types.BasisADA, 5, fiftyFifty())
	seedSnapshot(t, ts, w, types.HourBucket(testNow), "1000000000", "500000", 0.5, 0.003)

	view, err := ts.portfolioService().CurrentAllocation(ctx, w.ID)
	require.NoError(t, err)
	// 2000 USD at 0.5 USD per ADA
	assert.InDelta(t, 4000, view.TotalValue, 1e-6)
	assert.InDelta(t, 25, view.CurrentPct[types.UnitLovelace], 1e-9)
}

func TestCurrentAllocation_NoSnapshot(t *testing.T) {
	ctx := context.Background()
	ts := newTestStores()
	w := ts.addWallet(t, testAddrA, types.BasisUSD, 5, fiftyFifty())

	_, err := ts.portfolioService().CurrentAllocation(ctx, w.ID)
	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.CodeSnapshotNotFound, svcErr.Code)
	assert.Equal(t, 404, apperrors.GetHTTPStatusCode(err))
}

func TestAllocationHistory(t *testing.T) {
	ctx := context.Background()
	ts := newTestStores()
	w := ts.addWallet(t, testAddrA, types.BasisUSD, 5, fiftyFifty())
	bucket := types.HourBucket(testNow)
	seedSnapshot(t, ts, w, bucket.Add(-2*time.Hour), "1000000000", "500000", 0.5, 0.001)
	seedSnapshot(t, ts, w, bucket.Add(-time.Hour), "1000000000", "500000", 0.5, 0.003)
	seedSnapshot(t, ts, w, bucket, "600000000", "400", 1, 1)

	svc := ts.portfolioService()
	points, err := svc.AllocationHistory(ctx, w.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 50, points[0].CurrentPct[testUnitHosky], 1e-9)
	assert.InDelta(t, 75, points[1].CurrentPct[testUnitHosky], 1e-9)
	assert.InDelta(t, 40, points[2].CurrentPct[testUnitHosky], 1e-9)
	assert.InDelta(t, 1000, points[2].TotalValue, 1e-9)

	from := bucket.Add(-90 * time.Minute)
	points, err = svc.AllocationHistory(ctx, w.ID, &from, nil)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestHistoryWindowValidation(t *testing.T) {
	ctx := context.Background()
	ts := newTestStores()
	w := ts.addWallet(t, testAddrA, types.BasisUSD, 5, fiftyFifty())
	svc := ts.portfolioService()

	from := testNow
	to := testNow.Add(-time.Hour)
	_, err := svc.ListSnapshots(ctx, w.ID, &from, &to)
	assert.True(t, apperrors.IsUserError(err))

	longAgo := testNow.AddDate(-2, 0, 0)
	_, err = svc.PriceHistory(ctx, types.UnitLovelace, &longAgo, nil)
	assert.True(t, apperrors.IsUserError(err))

	_, err = svc.PriceHistory(ctx, "", nil, nil)
	assert.True(t, apperrors.IsUserError(err))
}

func TestListSnapshotsAndPriceHistory(t *testing.T) {
	ctx := context.Background()
	ts := newTestStores()
	w := ts.addWallet(t, testAddrA, types.BasisUSD, 5, fiftyFifty())
	bucket := types.HourBucket(testNow)
	seedSnapshot(t, ts, w, bucket.Add(-time.Hour), "1000000000", "500000", 0.5, 0.001)
	seedSnapshot(t, ts, w, bucket, "1000000000", "500000", 0.6, 0.002)

	svc := ts.portfolioService()
	snaps, err := svc.ListSnapshots(ctx, w.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Bucket.Before(snaps[1].Bucket))
	assert.Len(t, snaps[1].Balances, 2)

	prices, err := svc.PriceHistory(ctx, types.UnitLovelace, nil, nil)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, 0.5, prices[0].PriceUSD)
	assert.Equal(t, 0.6, prices[1].PriceUSD)

	empty, err := svc.PriceHistory(ctx, "unknown", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListAlerts(t *testing.T) {
	ctx := context.Background()
	ts := newTestStores()
	w := ts.addWallet(t, testAddrA, types.BasisUSD, 5, fiftyFifty())
	snap := seedSnapshot(t, ts, w, types.HourBucket(testNow), "1000000000", "500000", 0.5, 0.003)
	require.NoError(t, ts.events.Create(ctx, &models.AlertEvent{WalletID: w.ID, SnapshotID: snap.ID, Payload: []byte(`{}`)}))

	events, err := ts.portfolioService().ListAlerts(ctx, w.ID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = ts.portfolioService().ListAlerts(ctx, "missing", 10)
	assert.Error(t, err)
}
