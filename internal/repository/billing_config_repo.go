package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/seatsync/seatsync-api/internal/models"
)

// SQLiteBillingConfigRepository implements BillingConfigRepository for SQLite.
type SQLiteBillingConfigRepository struct {
	db *sql.DB
}

// NewSQLiteBillingConfigRepository creates a new SQLite billing configuration repository.
func NewSQLiteBillingConfigRepository(db *sql.DB) *SQLiteBillingConfigRepository {
	return &SQLiteBillingConfigRepository{db: db}
}

const billingConfigColumns = `entity_id, billing_model, billing_period, subscription_id, subscription_item_id,
	customer_id, paid_seats, price_per_seat_usd, high_water_mark, high_water_mark_period_start,
	subscription_start, trial_ends_at, created_at, updated_at`

func (r *SQLiteBillingConfigRepository) GetByEntityID(ctx context.Context, entityID int64) (*models.BillingConfiguration, error) {
	query := `SELECT ` + billingConfigColumns + ` FROM billing_configurations WHERE entity_id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, entityID))
}

func (r *SQLiteBillingConfigRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.BillingConfiguration, error) {
	query := `SELECT ` + billingConfigColumns + ` FROM billing_configurations WHERE subscription_id = ? AND subscription_id != ''`
	return r.scanOne(r.db.QueryRowContext(ctx, query, subscriptionID))
}

func (r *SQLiteBillingConfigRepository) scanOne(row *sql.Row) (*models.BillingConfiguration, error) {
	var cfg models.BillingConfiguration
	var billingPeriod, hwmPeriodStart, subscriptionStart, trialEndsAt sql.NullString
	var paidSeats, highWaterMark sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(&cfg.EntityID, &cfg.BillingModel, &billingPeriod, &cfg.SubscriptionID, &cfg.SubscriptionItemID,
		&cfg.CustomerID, &paidSeats, &cfg.PricePerSeatUSD, &highWaterMark, &hwmPeriodStart,
		&subscriptionStart, &trialEndsAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if billingPeriod.Valid {
		cfg.BillingPeriod = models.BillingPeriod(billingPeriod.String)
	}
	if paidSeats.Valid {
		cfg.PaidSeats = &paidSeats.Int64
	}
	if highWaterMark.Valid {
		cfg.HighWaterMark = &highWaterMark.Int64
	}
	cfg.HighWaterMarkPeriodStart = parseTimePtr(hwmPeriodStart)
	cfg.SubscriptionStart = parseTimePtr(subscriptionStart)
	cfg.TrialEndsAt = parseTimePtr(trialEndsAt)
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &cfg, nil
}

func (r *SQLiteBillingConfigRepository) Upsert(ctx context.Context, cfg *models.BillingConfiguration) error {
	query := `INSERT INTO billing_configurations (` + billingConfigColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			billing_model = excluded.billing_model,
			billing_period = excluded.billing_period,
			subscription_id = excluded.subscription_id,
			subscription_item_id = excluded.subscription_item_id,
			customer_id = excluded.customer_id,
			paid_seats = excluded.paid_seats,
			price_per_seat_usd = excluded.price_per_seat_usd,
			high_water_mark = excluded.high_water_mark,
			high_water_mark_period_start = excluded.high_water_mark_period_start,
			subscription_start = excluded.subscription_start,
			trial_ends_at = excluded.trial_ends_at,
			updated_at = excluded.updated_at`

	var billingPeriod *string
	if cfg.BillingPeriod != models.BillingPeriodNone {
		s := string(cfg.BillingPeriod)
		billingPeriod = &s
	}

	now := time.Now().UTC()
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		cfg.EntityID, cfg.BillingModel, billingPeriod, cfg.SubscriptionID, cfg.SubscriptionItemID,
		cfg.CustomerID, cfg.PaidSeats, cfg.PricePerSeatUSD, cfg.HighWaterMark,
		formatTimePtr(cfg.HighWaterMarkPeriodStart), formatTimePtr(cfg.SubscriptionStart),
		formatTimePtr(cfg.TrialEndsAt), createdAt.Format(time.RFC3339), now.Format(time.RFC3339))
	return err
}

func (r *SQLiteBillingConfigRepository) RaiseHighWaterMark(ctx context.Context, entityID int64, count int64, periodStart time.Time) error {
	// The CASE keeps the update safe under concurrent additions: a new or
	// re-anchored period takes count as-is, an existing period only moves up.
	query := `UPDATE billing_configurations SET
			high_water_mark = CASE
				WHEN high_water_mark_period_start IS NULL
					OR high_water_mark_period_start != ?
					OR high_water_mark IS NULL
				THEN ?
				ELSE MAX(high_water_mark, ?)
			END,
			high_water_mark_period_start = ?,
			updated_at = ?
		WHERE entity_id = ?`

	anchor := periodStart.UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, query, anchor, count, count, anchor,
		time.Now().UTC().Format(time.RFC3339), entityID)
	return err
}

func (r *SQLiteBillingConfigRepository) ResetHighWaterMark(ctx context.Context, entityID int64, count int64, periodStart time.Time) error {
	query := `UPDATE billing_configurations SET
			high_water_mark = ?,
			high_water_mark_period_start = ?,
			updated_at = ?
		WHERE entity_id = ?`
	_, err := r.db.ExecContext(ctx, query, count, periodStart.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339), entityID)
	return err
}

func (r *SQLiteBillingConfigRepository) UpdatePaidSeats(ctx context.Context, entityID int64, paidSeats int64) error {
	query := `UPDATE billing_configurations SET paid_seats = ?, updated_at = ? WHERE entity_id = ?`
	_, err := r.db.ExecContext(ctx, query, paidSeats, time.Now().UTC().Format(time.RFC3339), entityID)
	return err
}

// ========================================
// Shared helpers
// ========================================

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// IsDuplicateKeyError checks if an error is a uniqueness constraint violation.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "already exists")
}
