package models

import (
	"encoding/json"
	"time"
)

// AlertEvent records one threshold alert for a (wallet, snapshot) pair and its delivery status
type AlertEvent struct {
	ID                          string          `json:"id" db:"id"`
	WalletID                    string          `json:"walletId" db:"wallet_id"`
	SnapshotID                  string          `json:"snapshotId" db:"snapshot_id"`
	DeviationThresholdPctPoints float64         `json:"deviationThresholdPctPoints" db:"deviation_threshold_pct_points"`
	Payload                     json.RawMessage `json:"payload" db:"payload"`
	Sent                        bool            `json:"sent" db:"sent"`
	LastError                   *string         `json:"lastError,omitempty" db:"last_error"`
	CreatedAt                   time.Time       `json:"createdAt" db:"created_at"`
	SentAt                      *time.Time      `json:"sentAt,omitempty" db:"sent_at"`
}
