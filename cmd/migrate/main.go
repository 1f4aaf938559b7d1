// Package main applies the Postgres and ClickHouse schemas.
//
//	migrate -db postgres -action up
//	migrate -db postgres -action version
//	migrate -db clickhouse -dir ./migrations
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cardano-portfolio/internal/config"
	"github.com/cardano-portfolio/internal/storage"
)

type runner func(cfg *config.Config, action, dir string) error

var runners = map[string]runner{
	"postgres":   migratePostgres,
	"clickhouse": migrateClickHouse,
}

func main() {
	action := flag.String("action", "up", "up, down (one step) or version")
	dbType := flag.String("db", "postgres", "postgres or clickhouse")
	root := flag.String("dir", "migrations", "directory holding postgres/ and clickhouse/ migration folders")
	flag.Parse()

	run, ok := runners[*dbType]
	if !ok {
		log.Fatalf("Unknown database type: %s", *dbType)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dir := filepath.Join(*root, *dbType)
	if _, err := os.Stat(dir); err != nil {
		log.Fatalf("Migrations directory %s: %v", dir, err)
	}

	if err := run(cfg, *action, dir); err != nil {
		log.Fatalf("%s migration (%s) failed: %v", *dbType, *action, err)
	}
}

func migratePostgres(cfg *config.Config, action, dir string) error {
	url := storage.DatabaseURL(&cfg.Database.Postgres)

	switch action {
	case "up":
		if err := storage.RunMigrations(url, dir); err != nil {
			return err
		}
	case "down":
		if err := storage.RollbackMigrations(url, dir); err != nil {
			return err
		}
	case "version":
		version, dirty, err := storage.MigrationVersion(url, dir)
		if err != nil {
			return err
		}
		log.Printf("postgres schema at version %d (dirty=%v)", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	log.Printf("postgres %s complete", action)
	return nil
}

func migrateClickHouse(cfg *config.Config, action, dir string) error {
	if action != "up" {
		return fmt.Errorf("clickhouse supports only the up action")
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("closing clickhouse: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := storage.RunClickHouseMigrations(ctx, db, dir); err != nil {
		return err
	}
	log.Println("clickhouse up complete")
	return nil
}
