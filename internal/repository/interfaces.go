// Package repository defines repository interfaces for data access.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/seatsync/seatsync-api/internal/models"
)

// BillingConfigRepository defines methods for billing configuration access.
// Lookups return (nil, nil) when no configuration exists; callers treat
// that as "nothing to reconcile", not a fault.
type BillingConfigRepository interface {
	GetByEntityID(ctx context.Context, entityID int64) (*models.BillingConfiguration, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.BillingConfiguration, error)
	Upsert(ctx context.Context, cfg *models.BillingConfiguration) error
	// RaiseHighWaterMark applies the monotonic-max update rule: if the
	// stored period anchor is missing or differs from periodStart, or the
	// mark is unset, the mark is set to count unconditionally; otherwise it
	// only moves up. The comparison happens in the database, so concurrent
	// callers cannot lower the mark.
	RaiseHighWaterMark(ctx context.Context, entityID int64, count int64, periodStart time.Time) error
	// ResetHighWaterMark unconditionally re-anchors the mark to count at
	// periodStart. Used at period boundaries and for lazy initialization.
	ResetHighWaterMark(ctx context.Context, entityID int64, count int64, periodStart time.Time) error
	UpdatePaidSeats(ctx context.Context, entityID int64, paidSeats int64) error
}

// SeatChangeRepository defines methods for the append-only seat change log.
type SeatChangeRepository interface {
	// Create inserts an audit entry. A retried operation id violates the
	// log's uniqueness constraint; callers detect that with IsDuplicateKeyError.
	Create(ctx context.Context, entry *models.SeatChangeLogEntry) error
	GetByOperationID(ctx context.Context, entityID int64, operationID string) (*models.SeatChangeLogEntry, error)
	GetMonthlySummary(ctx context.Context, entityID int64, monthKey string) (*models.MonthlyChangeSummary, error)
	ListByEntityAndMonth(ctx context.Context, entityID int64, monthKey string) ([]*models.SeatChangeLogEntry, error)
	GetUnprocessed(ctx context.Context, entityID int64, monthKey string) ([]*models.SeatChangeLogEntry, error)
	// ListUnprocessedEntities returns the distinct entities that have
	// unprocessed entries for the month.
	ListUnprocessedEntities(ctx context.Context, monthKey string) ([]int64, error)
	// MarkProcessed stamps all still-unprocessed entries for the entity and
	// month with prorationID in one statement, so overlapping batch runs
	// cannot double-consume. Returns the number of entries claimed.
	MarkProcessed(ctx context.Context, entityID int64, monthKey string, prorationID string) (int64, error)
}

// MembershipRepository is the roster shim the reconciliation engine reads
// seat counts from.
type MembershipRepository interface {
	// CountByEntity returns the entity's current seat count. The boolean is
	// false when the entity is unknown, which is distinct from a known
	// entity with zero members.
	CountByEntity(ctx context.Context, entityID int64) (int64, bool, error)
	AddMember(ctx context.Context, entityID, userID int64) (bool, error)
	RemoveMember(ctx context.Context, entityID, userID int64) (bool, error)
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	CreateTeam(ctx context.Context, team *models.Team) error
}

// FeatureFlagRepository defines methods for globally-scoped runtime flags.
type FeatureFlagRepository interface {
	Get(ctx context.Context, name string) (*models.FeatureFlag, error)
	Set(ctx context.Context, name string, enabled bool) error
}

// ProrationRunRepository tracks monthly proration batch executions.
type ProrationRunRepository interface {
	Create(ctx context.Context, run *models.ProrationRun) error
	Complete(ctx context.Context, id string, status models.ProrationRunStatus, entityCount, entryCount int, errMsg string) error
	GetByID(ctx context.Context, id string) (*models.ProrationRun, error)
	ListByMonth(ctx context.Context, monthKey string) ([]*models.ProrationRun, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	BillingConfig BillingConfigRepository
	SeatChange    SeatChangeRepository
	Membership    MembershipRepository
	FeatureFlag   FeatureFlagRepository
	ProrationRun  ProrationRunRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		BillingConfig: NewSQLiteBillingConfigRepository(db),
		SeatChange:    NewSQLiteSeatChangeRepository(db),
		Membership:    NewSQLiteMembershipRepository(db),
		FeatureFlag:   NewSQLiteFeatureFlagRepository(db),
		ProrationRun:  NewSQLiteProrationRunRepository(db),
	}
}
