package models

import (
	"time"
)

// Snapshot is one wallet's balances for one hour bucket.
// At most one exists per (wallet, bucket).
type Snapshot struct {
	ID        string    `json:"id" db:"id"`
	WalletID  string    `json:"walletId" db:"wallet_id"`
	Bucket    time.Time `json:"bucket" db:"bucket"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// SnapshotBalance is the raw on-chain quantity of one unit inside a snapshot
type SnapshotBalance struct {
	SnapshotID  string `json:"snapshotId" db:"snapshot_id"`
	Unit        string `json:"unit" db:"unit"`
	RawQuantity string `json:"rawQuantity" db:"raw_quantity"`
	Decimals    *int   `json:"decimals,omitempty" db:"decimals"`
}

// PriceSnapshot is the USD price of one unit for one hour bucket, shared by all wallets
type PriceSnapshot struct {
	Bucket    time.Time `json:"bucket" db:"bucket"`
	Unit      string    `json:"unit" db:"unit"`
	PriceUSD  float64   `json:"priceUsd" db:"price_usd"`
	Source    string    `json:"source" db:"source"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
