// Package app wires configuration, storage, adapters and services into the
// object graph shared by the server and the snapshot worker.
package app

import (
	"context"
	"fmt"

	"github.com/cardano-portfolio/internal/adapter"
	"github.com/cardano-portfolio/internal/config"
	"github.com/cardano-portfolio/internal/logging"
	"github.com/cardano-portfolio/internal/pricing"
	"github.com/cardano-portfolio/internal/service"
	"github.com/cardano-portfolio/internal/storage"
)

// App holds the wired services and the connections they depend on
type App struct {
	Config *config.Config

	Postgres   *storage.PostgresDB
	ClickHouse *storage.ClickHouseDB
	Redis      *storage.RedisCache

	Koios    *adapter.KoiosClient
	Resolver *pricing.Resolver

	Wallets   *service.WalletService
	Portfolio *service.PortfolioService
	Snapshots *service.SnapshotService
	Alerts    *service.AlertService
}

// New connects to every backing store and builds the services. Postgres is
// required; ClickHouse and Redis are optional and only disable price history
// mirroring and quote caching when unreachable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.GetGlobalLogger().WithComponent("app")
	a := &App{Config: cfg}

	logger.Info("Connecting to databases...")
	pg, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	a.Postgres = pg

	var history storage.PriceHistoryStore
	ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable; price history mirror disabled")
	} else {
		a.ClickHouse = ch
		history = storage.NewPriceHistoryRepository(ch)
	}

	var resolverOpts []pricing.Option
	rc, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable; price quotes will not be cached")
	} else {
		a.Redis = rc
		resolverOpts = append(resolverOpts, pricing.WithCache(storage.NewPriceCache(rc, cfg.Pricing.CacheTTL)))
	}
	logger.Info("Database connections established")

	koios, err := adapter.NewKoiosClient(&cfg.Koios)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create Koios client: %w", err)
	}
	a.Koios = koios

	wallets := storage.NewWalletRepository(pg)
	targets := storage.NewTargetRepository(pg)
	snapshots := storage.NewSnapshotRepository(pg)
	prices := storage.NewPriceSnapshotRepository(pg)
	events := storage.NewAlertEventRepository(pg)
	tokens := storage.NewTokenDefinitionRepository(pg)

	a.Resolver = pricing.NewResolver(
		tokens,
		adapter.NewKrakenClient(&cfg.Kraken),
		adapter.NewCoinGeckoClient(&cfg.CoinGecko),
		pricing.DefaultBaseUnits(
			cfg.Pricing.NativeTickerPair,
			cfg.Pricing.NativeAggregatorID,
			cfg.Pricing.ReferenceTickerPair,
			cfg.Pricing.ReferenceAggregatorID,
		),
		append(resolverOpts, pricing.WithLogger(logging.GetGlobalLogger().WithComponent("pricing")))...,
	)

	a.Wallets = service.NewWalletService(wallets, targets, tokens)
	a.Portfolio = service.NewPortfolioService(wallets, targets, snapshots, prices, history, events)
	a.Snapshots = service.NewSnapshotService(wallets, targets, snapshots, prices, history, koios, a.Resolver)
	a.Alerts = service.NewAlertService(wallets, targets, snapshots, prices, events, adapter.NewWebhookNotifier(&cfg.Webhook))

	if err := a.Wallets.LoadManualPrices(ctx, cfg.Pricing.ManualPrices); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Webhook.URL == "" {
		logger.Warn("ALERT_WEBHOOK_URL is empty; alerts will be recorded with a delivery error")
	}
	return a, nil
}

// Close releases every open connection
func (a *App) Close() {
	logger := logging.GetGlobalLogger().WithComponent("app")
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.WithError(err).Warn("Error closing Redis")
		}
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			logger.WithError(err).Warn("Error closing ClickHouse")
		}
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
