package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/repository"
)

// ErrDuplicateOperation indicates a seat change with an operation id that
// was already logged. The original entry is returned alongside it.
var ErrDuplicateOperation = errors.New("duplicate operation - already logged")

// SeatChangeService maintains the append-only seat change audit log and is
// the entry point the strategies write through. The audit write is
// authoritative: it happens before, and independently of, any provider
// sync or peak-tracking update.
type SeatChangeService struct {
	repos  *repository.Repositories
	hwm    *HighWaterMarkService
	logger *slog.Logger
}

// NewSeatChangeService creates a new seat change service.
func NewSeatChangeService(repos *repository.Repositories, hwm *HighWaterMarkService, logger *slog.Logger) *SeatChangeService {
	return &SeatChangeService{
		repos:  repos,
		hwm:    hwm,
		logger: logger,
	}
}

// SeatChangeParams describes one seat change to log.
type SeatChangeParams struct {
	EntityID      int64
	SubjectUserID *int64
	ActorUserID   *int64
	SeatCount     int
	OperationID   *string
}

// LogAddition writes one audit entry for a seat addition against the
// entity's billing owner and then raises the high-water mark. A failed
// peak update never fails the audit write, which has already committed.
//
// Returns ErrDuplicateOperation (with the original entry) when the
// operation id was already consumed.
func (s *SeatChangeService) LogAddition(ctx context.Context, p SeatChangeParams) (*models.SeatChangeLogEntry, error) {
	entry, err := s.log(ctx, models.SeatChangeAddition, p)
	if err != nil {
		return entry, err
	}

	// Peak tracking is isolated from the log write: the entry above is
	// already durable and must survive any failure here.
	if anchor := s.periodAnchor(ctx, entry.EntityID); anchor != nil {
		if err := s.hwm.UpdateOnAddition(ctx, entry.EntityID, *anchor); err != nil {
			s.logger.Error("failed to update high water mark after addition",
				"entity_id", entry.EntityID, "error", err)
		}
	}

	return entry, nil
}

// LogRemoval writes one audit entry for a seat removal. Removals never
// touch the high-water mark.
func (s *SeatChangeService) LogRemoval(ctx context.Context, p SeatChangeParams) (*models.SeatChangeLogEntry, error) {
	return s.log(ctx, models.SeatChangeRemoval, p)
}

func (s *SeatChangeService) log(ctx context.Context, changeType models.SeatChangeType, p SeatChangeParams) (*models.SeatChangeLogEntry, error) {
	ownerID, err := s.BillingOwner(ctx, p.EntityID)
	if err != nil {
		return nil, err
	}

	seatCount := p.SeatCount
	if seatCount <= 0 {
		seatCount = 1
	}

	now := time.Now().UTC()
	entry := &models.SeatChangeLogEntry{
		ID:            ulid.Make().String(),
		EntityID:      ownerID,
		ChangeType:    changeType,
		SeatCount:     seatCount,
		ActorUserID:   p.ActorUserID,
		SubjectUserID: p.SubjectUserID,
		MonthKey:      models.MonthKeyFor(now),
		OperationID:   p.OperationID,
		CreatedAt:     now,
	}

	if err := s.repos.SeatChange.Create(ctx, entry); err != nil {
		if repository.IsDuplicateKeyError(err) && p.OperationID != nil {
			existing, lookupErr := s.repos.SeatChange.GetByOperationID(ctx, ownerID, *p.OperationID)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to load existing seat change entry: %w", lookupErr)
			}
			s.logger.Info("duplicate seat change operation ignored",
				"entity_id", ownerID, "operation_id", *p.OperationID)
			return existing, ErrDuplicateOperation
		}
		return nil, fmt.Errorf("failed to create seat change entry: %w", err)
	}

	s.logger.Info("seat change logged",
		"entity_id", ownerID,
		"change_type", changeType,
		"seat_count", seatCount,
		"month_key", entry.MonthKey,
	)

	return entry, nil
}

// BillingOwner finds the billing record the entity's seats roll up to: the
// entity's own configuration when it has one, otherwise the parent
// organization's. Entities with no billing owner keep their own id so the
// change is still recorded for analytics.
func (s *SeatChangeService) BillingOwner(ctx context.Context, entityID int64) (int64, error) {
	cfg, err := s.repos.BillingConfig.GetByEntityID(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to load billing configuration: %w", err)
	}
	if cfg != nil {
		return entityID, nil
	}

	team, err := s.repos.Membership.GetTeam(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to load team: %w", err)
	}
	if team == nil || team.ParentOrgID == nil {
		return entityID, nil
	}

	parentCfg, err := s.repos.BillingConfig.GetByEntityID(ctx, *team.ParentOrgID)
	if err != nil {
		return 0, fmt.Errorf("failed to load parent billing configuration: %w", err)
	}
	if parentCfg != nil {
		return *team.ParentOrgID, nil
	}

	return entityID, nil
}

// periodAnchor resolves the current billing period start used to scope the
// high-water mark. Nil when the configuration is missing or carries no
// usable anchor; the peak update is skipped in that case.
func (s *SeatChangeService) periodAnchor(ctx context.Context, entityID int64) *time.Time {
	cfg, err := s.repos.BillingConfig.GetByEntityID(ctx, entityID)
	if err != nil {
		s.logger.Warn("failed to load billing configuration for period anchor",
			"entity_id", entityID, "error", err)
		return nil
	}
	if cfg == nil {
		return nil
	}
	if cfg.HighWaterMarkPeriodStart != nil {
		return cfg.HighWaterMarkPeriodStart
	}
	if cfg.SubscriptionStart != nil {
		return cfg.SubscriptionStart
	}

	s.logger.Warn("no period anchor for entity, skipping high water mark update", "entity_id", entityID)
	return nil
}

// GetMonthlyChanges aggregates the entity's seat changes for one calendar
// month. NetChange is clamped at zero.
func (s *SeatChangeService) GetMonthlyChanges(ctx context.Context, entityID int64, monthKey string) (*models.MonthlyChangeSummary, error) {
	summary, err := s.repos.SeatChange.GetMonthlySummary(ctx, entityID, monthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize seat changes: %w", err)
	}
	return summary, nil
}

// GetUnprocessedChanges returns the entries for one entity and month that
// no proration invoice has consumed yet.
func (s *SeatChangeService) GetUnprocessedChanges(ctx context.Context, entityID int64, monthKey string) ([]*models.SeatChangeLogEntry, error) {
	entries, err := s.repos.SeatChange.GetUnprocessed(ctx, entityID, monthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load unprocessed seat changes: %w", err)
	}
	return entries, nil
}

// MarkAsProcessed stamps all unprocessed entries for the entity and month
// with prorationID in one atomic update, so overlapping proration runs
// cannot bill the same entry twice. Returns the number of entries claimed.
func (s *SeatChangeService) MarkAsProcessed(ctx context.Context, entityID int64, monthKey, prorationID string) (int64, error) {
	claimed, err := s.repos.SeatChange.MarkProcessed(ctx, entityID, monthKey, prorationID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark seat changes processed: %w", err)
	}

	if claimed > 0 {
		s.logger.Info("seat changes marked processed",
			"entity_id", entityID,
			"month_key", monthKey,
			"proration_id", prorationID,
			"count", claimed,
		)
	}

	return claimed, nil
}
