package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cardano-portfolio/internal/config"
	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/types"
)

// setupTestDB starts a Postgres container and applies the migrations
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("portfolio_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("Skipping test - docker not available: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(dsn, findMigrationsDir(t, "postgres")))

	version, dirty, err := MigrationVersion(dsn, findMigrationsDir(t, "postgres"))
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	db, err := NewPostgresDBFromDSN(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestDatabaseURL(t *testing.T) {
	url := DatabaseURL(&config.PostgresConfig{
		Host: "db", Port: "5432", User: "app", Password: "p@ss", Database: "portfolio",
	})
	assert.Equal(t, "postgres://app:p%40ss@db:5432/portfolio?sslmode=disable", url)
}

func TestPostgresRepositories(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext(t)

	wallets := NewWalletRepository(db)
	targets := NewTargetRepository(db)
	snapshots := NewSnapshotRepository(db)
	prices := NewPriceSnapshotRepository(db)
	alerts := NewAlertEventRepository(db)
	defs := NewTokenDefinitionRepository(db)

	w1, err := wallets.CreateOrReactivate(ctx, &models.Wallet{
		StakeAddress: "stake1u9one", DisplayName: "one",
		ThresholdBasis: types.BasisUSD, DeviationThresholdPctPoints: 5, SwapFeeBps: 30,
	})
	require.NoError(t, err)
	w2, err := wallets.CreateOrReactivate(ctx, &models.Wallet{
		StakeAddress: "stake1u9two", ThresholdBasis: types.BasisADA,
	})
	require.NoError(t, err)

	t.Run("wallet reactivation keeps identity", func(t *testing.T) {
		require.NoError(t, wallets.Deactivate(ctx, w2.ID))
		active, err := wallets.ListActive(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, active, 1)

		again, err := wallets.CreateOrReactivate(ctx, &models.Wallet{StakeAddress: "stake1u9two", ThresholdBasis: types.BasisUSD})
		require.NoError(t, err)
		assert.Equal(t, w2.ID, again.ID)
		assert.True(t, again.Active)
		assert.Equal(t, types.BasisADA, again.ThresholdBasis)

		_, err = wallets.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("targets are replaced wholesale", func(t *testing.T) {
		require.NoError(t, targets.Replace(ctx, w1.ID, []models.Target{{Unit: "lovelace", TargetPct: 60}, {Unit: "btc", TargetPct: 40}}))
		require.NoError(t, targets.Replace(ctx, w1.ID, []models.Target{{Unit: "lovelace", TargetPct: 100}}))

		got, err := targets.ListByWallet(ctx, w1.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "lovelace", got[0].Unit)
	})

	bucket := types.HourBucket(time.Date(2026, 5, 1, 14, 37, 0, 0, time.UTC))

	t.Run("snapshot upsert is idempotent per bucket", func(t *testing.T) {
		first, err := snapshots.Upsert(ctx, []string{w1.ID, w2.ID}, bucket)
		require.NoError(t, err)
		second, err := snapshots.Upsert(ctx, []string{w1.ID}, bucket)
		require.NoError(t, err)
		assert.Equal(t, first[w1.ID].ID, second[w1.ID].ID)

		list, err := snapshots.ListByWallet(ctx, w1.ID, bucket.Add(-time.Hour), bucket.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, list, 1)

		sid := first[w1.ID].ID
		six := 6
		require.NoError(t, snapshots.UpsertBalances(ctx, []models.SnapshotBalance{{SnapshotID: sid, Unit: "lovelace", RawQuantity: "1000000", Decimals: &six}}))
		require.NoError(t, snapshots.UpsertBalances(ctx, []models.SnapshotBalance{{SnapshotID: sid, Unit: "lovelace", RawQuantity: "2500000", Decimals: &six}}))

		balances, err := snapshots.GetBalances(ctx, []string{sid})
		require.NoError(t, err)
		require.Len(t, balances[sid], 1)
		assert.Equal(t, "2500000", balances[sid][0].RawQuantity)

		latest, err := snapshots.GetLatest(ctx, w1.ID)
		require.NoError(t, err)
		assert.Equal(t, sid, latest.ID)
		assert.True(t, latest.Bucket.Equal(bucket))
	})

	t.Run("prices are deduplicated per bucket and unit", func(t *testing.T) {
		require.NoError(t, prices.Upsert(ctx, []models.PriceSnapshot{{Bucket: bucket, Unit: "btc", PriceUSD: 60000, Source: "kraken:XBTUSD"}}))
		require.NoError(t, prices.Upsert(ctx, []models.PriceSnapshot{{Bucket: bucket, Unit: "btc", PriceUSD: 61000, Source: "kraken:XBTUSD"}}))

		rows, err := prices.ListByRange(ctx, []string{"btc"}, bucket, bucket)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 61000.0, rows[0].PriceUSD)

		byUnit, err := prices.GetByBucket(ctx, bucket, []string{"btc", "lovelace"})
		require.NoError(t, err)
		assert.Len(t, byUnit, 1)
	})

	t.Run("one alert event per wallet and snapshot", func(t *testing.T) {
		snap, err := snapshots.GetByWalletAndBucket(ctx, w1.ID, bucket)
		require.NoError(t, err)

		payload, _ := json.Marshal(map[string]string{"k": "v"})
		event := &models.AlertEvent{WalletID: w1.ID, SnapshotID: snap.ID, DeviationThresholdPctPoints: 5, Payload: payload}
		require.NoError(t, alerts.Create(ctx, event))

		exists, err := alerts.Exists(ctx, w1.ID, snap.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		err = alerts.Create(ctx, &models.AlertEvent{WalletID: w1.ID, SnapshotID: snap.ID, Payload: payload})
		assert.ErrorIs(t, err, ErrDuplicateKey)

		require.NoError(t, alerts.MarkDelivery(ctx, event.ID, true, nil, time.Now()))
		list, err := alerts.ListByWallet(ctx, w1.ID, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Sent)
		assert.NotNil(t, list[0].SentAt)
	})

	t.Run("token definitions", func(t *testing.T) {
		pair := "XBTUSD"
		require.NoError(t, defs.Upsert(ctx, &models.TokenDefinition{Unit: "btc", Symbol: "BTC", PriceSource: types.SourceTicker, TickerPair: &pair}))
		require.NoError(t, defs.SetManualPrice(ctx, "stable", 1))

		got, err := defs.GetByUnits(ctx, []string{"btc", "stable", "missing"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, types.SourceTicker, got["btc"].PriceSource)
		assert.Equal(t, types.SourceManual, got["stable"].PriceSource)
		assert.Equal(t, 1.0, *got["stable"].ManualPriceUSD)
	})
}
