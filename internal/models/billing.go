// Package models defines the domain models for the application.
package models

import "time"

// ========================================
// Billing Configuration
// ========================================

// BillingModel selects how an entity's subscription is billed.
type BillingModel string

const (
	// BillingModelSeats bills a fixed quantity per membership slot.
	BillingModelSeats BillingModel = "SEATS"

	// BillingModelActiveUsers bills on metered active usage. Quantity is
	// computed by the usage-metering pipeline, not by seat reconciliation.
	BillingModelActiveUsers BillingModel = "ACTIVE_USERS"
)

// BillingPeriod is the recurrence of the external subscription.
// An empty value means no recurring period is configured.
type BillingPeriod string

const (
	BillingPeriodMonthly  BillingPeriod = "MONTHLY"
	BillingPeriodAnnually BillingPeriod = "ANNUALLY"
	BillingPeriodNone     BillingPeriod = ""
)

// BillingConfiguration is the per-entity billing record. An entity is a
// team or an organization; the two are mutually exclusive owners of a
// subscription.
//
// HighWaterMark is the peak seat count observed in the current billing
// period, scoped by HighWaterMarkPeriodStart. It is monotonically
// non-decreasing within a period and only ever written by the
// high-water-mark service.
type BillingConfiguration struct {
	EntityID      int64         `json:"entity_id"`
	BillingModel  BillingModel  `json:"billing_model"`
	BillingPeriod BillingPeriod `json:"billing_period"`

	// External provider identifiers
	SubscriptionID     string `json:"subscription_id"`
	SubscriptionItemID string `json:"subscription_item_id"`
	CustomerID         string `json:"customer_id"`

	// PaidSeats is the last quantity known to be charged by the provider.
	// Nil until the first successful sync.
	PaidSeats *int64 `json:"paid_seats,omitempty"`

	PricePerSeatUSD float64 `json:"price_per_seat_usd"`

	HighWaterMark            *int64     `json:"high_water_mark,omitempty"`
	HighWaterMarkPeriodStart *time.Time `json:"high_water_mark_period_start,omitempty"`

	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	TrialEndsAt       *time.Time `json:"trial_ends_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTrialing reports whether the configuration is still inside its trial.
func (c *BillingConfiguration) IsTrialing(now time.Time) bool {
	return c.TrialEndsAt != nil && now.Before(*c.TrialEndsAt)
}

// ========================================
// Seat Change Log
// ========================================

// SeatChangeType is the direction of a seat change.
type SeatChangeType string

const (
	SeatChangeAddition SeatChangeType = "ADDITION"
	SeatChangeRemoval  SeatChangeType = "REMOVAL"
)

// SeatChangeLogEntry is one append-only audit record of a seat change.
// Entries are never deleted; only Processed/ProrationID are updated once a
// monthly proration invoice has consumed the entry.
type SeatChangeLogEntry struct {
	ID         string         `json:"id"`
	EntityID   int64          `json:"entity_id"`
	ChangeType SeatChangeType `json:"change_type"`
	SeatCount  int            `json:"seat_count"`

	ActorUserID   *int64 `json:"actor_user_id,omitempty"`
	SubjectUserID *int64 `json:"subject_user_id,omitempty"`

	// MonthKey is the UTC calendar month the change belongs to ("2026-01").
	MonthKey string `json:"month_key"`

	// OperationID is the caller-supplied idempotency key. At most one entry
	// exists per (entity, operation id); retries are dropped.
	OperationID *string `json:"operation_id,omitempty"`

	Processed   bool    `json:"processed"`
	ProrationID *string `json:"proration_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MonthKeyFor returns the UTC calendar-month bucket for t.
func MonthKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthlyChangeSummary aggregates one entity's seat changes for one month.
// NetChange is clamped at zero: a month with more removals than additions
// yields no credit.
type MonthlyChangeSummary struct {
	EntityID  int64  `json:"entity_id"`
	MonthKey  string `json:"month_key"`
	Additions int    `json:"additions"`
	Removals  int    `json:"removals"`
	NetChange int    `json:"net_change"`
}

// ========================================
// Proration Runs
// ========================================

// ProrationRunStatus tracks the lifecycle of a proration batch run.
type ProrationRunStatus string

const (
	ProrationRunRunning   ProrationRunStatus = "running"
	ProrationRunCompleted ProrationRunStatus = "completed"
	ProrationRunFailed    ProrationRunStatus = "failed"
)

// ProrationRun records one execution of the monthly proration batch. Its ID
// becomes the ProrationID stamped onto consumed seat change entries, giving
// every billed entry provenance back to the run that invoiced it.
type ProrationRun struct {
	ID          string             `json:"id"`
	MonthKey    string             `json:"month_key"`
	Status      ProrationRunStatus `json:"status"`
	EntityCount int                `json:"entity_count"`
	EntryCount  int                `json:"entry_count"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// ========================================
// Teams & Memberships (roster shim)
// ========================================

// Team is the minimal roster-side view of a team. ParentOrgID links a team
// to the organization its seats roll up to when the team has no billing
// configuration of its own.
type Team struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ParentOrgID *int64    `json:"parent_org_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership is one billable seat: a user occupying a slot on an entity.
type Membership struct {
	EntityID  int64     `json:"entity_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ========================================
// Feature Flags
// ========================================

// Flag names understood by the reconciliation engine.
const (
	FlagHWMSeatBilling   = "hwm-seat-billing"
	FlagMonthlyProration = "monthly-proration"
)

// FeatureFlag is a globally-scoped runtime toggle.
type FeatureFlag struct {
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}
