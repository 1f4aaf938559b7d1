package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cardano-portfolio/internal/models"
)

// AlertEventRepository handles alert event persistence
type AlertEventRepository struct {
	db *PostgresDB
}

// NewAlertEventRepository creates a new alert event repository
func NewAlertEventRepository(db *PostgresDB) *AlertEventRepository {
	return &AlertEventRepository{db: db}
}

// Exists reports whether the wallet already has an event for the snapshot
func (r *AlertEventRepository) Exists(ctx context.Context, walletID, snapshotID string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM alert_events WHERE wallet_id = $1 AND snapshot_id = $2)`,
		walletID, snapshotID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check alert event: %w", err)
	}
	return exists, nil
}

// Create inserts a new, undelivered alert event
func (r *AlertEventRepository) Create(ctx context.Context, e *models.AlertEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO alert_events (id, wallet_id, snapshot_id, deviation_threshold_pct_points, payload, sent, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		e.ID, e.WalletID, e.SnapshotID, e.DeviationThresholdPctPoints, []byte(e.Payload), e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert alert event: %w", err)
	}
	return nil
}

// MarkDelivery records the outcome of a delivery attempt on the existing row
func (r *AlertEventRepository) MarkDelivery(ctx context.Context, id string, sent bool, lastError *string, at time.Time) error {
	var sentAt *time.Time
	if sent {
		t := at.UTC()
		sentAt = &t
	}

	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE alert_events SET sent = $2, last_error = $3, sent_at = COALESCE($4, sent_at)
		WHERE id = $1`,
		id, sent, lastError, sentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByWallet returns a wallet's most recent alert events
func (r *AlertEventRepository) ListByWallet(ctx context.Context, walletID string, limit int) ([]*models.AlertEvent, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, wallet_id, snapshot_id, deviation_threshold_pct_points, payload, sent, last_error, created_at, sent_at
		FROM alert_events
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	var events []*models.AlertEvent
	for rows.Next() {
		var e models.AlertEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.WalletID, &e.SnapshotID, &e.DeviationThresholdPctPoints,
			&payload, &e.Sent, &e.LastError, &e.CreatedAt, &e.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert event row: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert events: %w", err)
	}
	return events, nil
}

var _ AlertEventStore = (*AlertEventRepository)(nil)
