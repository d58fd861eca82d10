package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/seatsync/seatsync-api/internal/provider"
	"github.com/seatsync/seatsync-api/internal/repository"
)

// hwmStrategy reconciles SEATS+MONTHLY configurations through the
// high-water-mark tracker: mid-cycle changes drive the provider quantity
// toward the period's peak, the renewal boundary charges the peak and then
// re-baselines.
type hwmStrategy struct {
	repos         *repository.Repositories
	seatChangeSvc *SeatChangeService
	hwmSvc        *HighWaterMarkService
	gateway       provider.SubscriptionGateway
	logger        *slog.Logger
}

func (s *hwmStrategy) HandleInvoiceUpcoming(ctx context.Context, subscriptionID string) InvoiceUpcomingResult {
	applied, err := s.hwmSvc.ApplyToSubscription(ctx, subscriptionID)
	if err != nil {
		s.logger.Error("failed to apply high water mark before renewal invoice",
			"subscription_id", subscriptionID, "error", err)
		return InvoiceUpcomingResult{Applied: false}
	}
	return InvoiceUpcomingResult{Applied: applied}
}

func (s *hwmStrategy) HandlePostRenewalReset(ctx context.Context, subscriptionID string, periodStartUnix int64) PostRenewalResetResult {
	newPeriodStart := time.Unix(periodStartUnix, 0).UTC()

	updated, err := s.hwmSvc.ResetAfterRenewal(ctx, subscriptionID, newPeriodStart)
	if err != nil {
		// The webhook delivery must not fail for one tenant's billing
		// error; surface the failure in the result instead.
		s.logger.Error("post-renewal reset failed",
			"subscription_id", subscriptionID, "error", err)
		return PostRenewalResetResult{Success: false, Error: err.Error()}
	}

	return PostRenewalResetResult{Success: true, Updated: updated}
}

func (s *hwmStrategy) HandleMemberAddition(ctx context.Context, p MemberChangeParams) error {
	entry, err := s.seatChangeSvc.LogAddition(ctx, SeatChangeParams(p))
	if err != nil && !errors.Is(err, ErrDuplicateOperation) {
		return err
	}

	ownerID := p.EntityID
	if entry != nil {
		ownerID = entry.EntityID
	}

	// The audit entry is durable at this point; a provider failure below
	// is logged and swallowed.
	return s.SyncBillingQuantity(ctx, ownerID)
}

func (s *hwmStrategy) HandleMemberRemoval(ctx context.Context, p MemberChangeParams) error {
	entry, err := s.seatChangeSvc.LogRemoval(ctx, SeatChangeParams(p))
	if err != nil && !errors.Is(err, ErrDuplicateOperation) {
		return err
	}

	ownerID := p.EntityID
	if entry != nil {
		ownerID = entry.EntityID
	}

	return s.SyncBillingQuantity(ctx, ownerID)
}

// SyncBillingQuantity drives the provider quantity toward the tracked
// peak, not the instantaneous roster count: a removal right after an
// addition must not lower what the period will pay for. No audit entry is
// written here. Provider failures are logged and swallowed; the next sync
// or renewal cycle corrects any drift.
func (s *hwmStrategy) SyncBillingQuantity(ctx context.Context, entityID int64) error {
	cfg, err := s.repos.BillingConfig.GetByEntityID(ctx, entityID)
	if err != nil {
		s.logger.Error("failed to load billing configuration for sync",
			"entity_id", entityID, "error", err)
		return nil
	}
	if cfg == nil || cfg.SubscriptionItemID == "" {
		s.logger.Debug("no subscription to sync", "entity_id", entityID)
		return nil
	}
	if s.gateway == nil {
		s.logger.Warn("subscription gateway not configured, skipping sync", "entity_id", entityID)
		return nil
	}

	count, known, err := s.repos.Membership.CountByEntity(ctx, entityID)
	if err != nil || !known {
		s.logger.Warn("member count unavailable, skipping sync",
			"entity_id", entityID, "error", err)
		return nil
	}

	target := count
	if cfg.HighWaterMark != nil && *cfg.HighWaterMark > target {
		target = *cfg.HighWaterMark
	}

	if err := s.gateway.UpdateSubscriptionQuantity(ctx, provider.UpdateQuantityParams{
		SubscriptionID:     cfg.SubscriptionID,
		SubscriptionItemID: cfg.SubscriptionItemID,
		Quantity:           target,
		ProrationBehavior:  provider.ProrationBehaviorNone,
	}); err != nil {
		s.logger.Error("failed to sync subscription quantity",
			"entity_id", entityID,
			"subscription_id", cfg.SubscriptionID,
			"quantity", target,
			"error", err,
		)
		return nil
	}

	s.logger.Debug("subscription quantity synced",
		"entity_id", entityID, "quantity", target)

	return nil
}
