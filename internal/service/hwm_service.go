package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/provider"
	"github.com/seatsync/seatsync-api/internal/repository"
)

// ErrGatewayNotConfigured indicates a provider-facing operation was invoked
// without a configured subscription gateway. Unlike a missing billing
// configuration, this is a deployment fault and surfaces as an error.
var ErrGatewayNotConfigured = errors.New("subscription gateway not configured")

// HighWaterMarkService tracks the peak seat count per billing period and
// drives the provider subscription toward it at period boundaries.
//
// The two-phase protocol is: ApplyToSubscription just before the renewal
// invoice charges the period's peak, then ResetAfterRenewal re-baselines
// the mark and the billed quantity to the real current count for the new
// period. Mid-cycle removals therefore never reduce what a period pays for,
// while mid-cycle additions never trigger an immediate invoice.
type HighWaterMarkService struct {
	repos   *repository.Repositories
	flags   *FeatureFlagService
	gateway provider.SubscriptionGateway
	logger  *slog.Logger
}

// NewHighWaterMarkService creates a new high-water-mark service.
// gateway may be nil; provider-facing operations then fail with
// ErrGatewayNotConfigured.
func NewHighWaterMarkService(repos *repository.Repositories, flags *FeatureFlagService, gateway provider.SubscriptionGateway, logger *slog.Logger) *HighWaterMarkService {
	return &HighWaterMarkService{
		repos:   repos,
		flags:   flags,
		gateway: gateway,
		logger:  logger,
	}
}

// UpdateOnAddition raises the tracked peak after a seat addition. Removals
// never call this: the mark only moves down at a period reset.
//
// The update is expressed as a comparison against the stored value, so
// concurrent additions racing on the same configuration are safe to retry
// and cannot lower the mark.
func (s *HighWaterMarkService) UpdateOnAddition(ctx context.Context, entityID int64, currentPeriodStart time.Time) error {
	if !s.flags.IsGloballyEnabled(ctx, models.FlagHWMSeatBilling) {
		return nil
	}

	cfg, err := s.repos.BillingConfig.GetByEntityID(ctx, entityID)
	if err != nil {
		return fmt.Errorf("failed to load billing configuration: %w", err)
	}
	if cfg == nil {
		return nil
	}
	if cfg.BillingModel != models.BillingModelSeats {
		// Peak tracking only applies to seat billing.
		return nil
	}

	count, known, err := s.repos.Membership.CountByEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("failed to count members: %w", err)
	}
	if !known {
		s.logger.Warn("member count unavailable, skipping high water mark update", "entity_id", entityID)
		return nil
	}

	if err := s.repos.BillingConfig.RaiseHighWaterMark(ctx, entityID, count, currentPeriodStart); err != nil {
		return fmt.Errorf("failed to raise high water mark: %w", err)
	}

	s.logger.Debug("high water mark updated",
		"entity_id", entityID,
		"current_count", count,
		"period_start", currentPeriodStart,
	)

	return nil
}

// ApplyToSubscription sets the provider subscription quantity to the
// period's tracked peak, with provider-side proration disabled (the
// high-water mark mechanism is the proration strategy). Returns true only
// when the provider quantity was actually changed.
//
// Idempotent at the result level: once paid seats equal the mark, further
// calls are no-ops.
func (s *HighWaterMarkService) ApplyToSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	if !s.flags.IsGloballyEnabled(ctx, models.FlagHWMSeatBilling) {
		return false, nil
	}
	if s.gateway == nil {
		return false, ErrGatewayNotConfigured
	}

	cfg, err := s.repos.BillingConfig.GetBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("failed to load billing configuration: %w", err)
	}
	if cfg == nil {
		s.logger.Debug("no billing configuration for subscription", "subscription_id", subscriptionID)
		return false, nil
	}
	if cfg.BillingPeriod != models.BillingPeriodMonthly {
		return false, nil
	}

	highWaterMark := cfg.HighWaterMark
	if highWaterMark == nil {
		// Lazy initialization: take the current roster count as the
		// initial peak. Seats added and removed before this point are not
		// recovered; accepted behavior.
		count, known, err := s.repos.Membership.CountByEntity(ctx, cfg.EntityID)
		if err != nil {
			return false, fmt.Errorf("failed to count members: %w", err)
		}
		if !known {
			s.logger.Warn("member count unavailable, cannot initialize high water mark", "entity_id", cfg.EntityID)
			return false, nil
		}

		anchor := cfg.HighWaterMarkPeriodStart
		if anchor == nil {
			anchor = cfg.SubscriptionStart
		}
		if anchor == nil {
			s.logger.Warn("no period anchor for high water mark initialization",
				"entity_id", cfg.EntityID, "subscription_id", subscriptionID)
			return false, nil
		}

		if err := s.repos.BillingConfig.ResetHighWaterMark(ctx, cfg.EntityID, count, *anchor); err != nil {
			return false, fmt.Errorf("failed to initialize high water mark: %w", err)
		}
		highWaterMark = &count
	}

	paidSeats := cfg.PaidSeats
	if paidSeats == nil {
		// Local copy of the charged quantity is unknown; sync it from the
		// provider's live subscription.
		sub, err := s.gateway.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return false, fmt.Errorf("failed to fetch subscription: %w", err)
		}
		if err := s.repos.BillingConfig.UpdatePaidSeats(ctx, cfg.EntityID, sub.Quantity); err != nil {
			return false, fmt.Errorf("failed to store paid seats: %w", err)
		}
		paidSeats = &sub.Quantity
	}

	if *highWaterMark == *paidSeats {
		s.logger.Debug("billed quantity already at high water mark",
			"subscription_id", subscriptionID, "quantity", *paidSeats)
		return false, nil
	}

	direction := "up"
	if *highWaterMark < *paidSeats {
		direction = "down"
	}

	if err := s.gateway.UpdateSubscriptionQuantity(ctx, provider.UpdateQuantityParams{
		SubscriptionID:     subscriptionID,
		SubscriptionItemID: cfg.SubscriptionItemID,
		Quantity:           *highWaterMark,
		ProrationBehavior:  provider.ProrationBehaviorNone,
	}); err != nil {
		return false, fmt.Errorf("failed to update subscription quantity: %w", err)
	}

	if err := s.repos.BillingConfig.UpdatePaidSeats(ctx, cfg.EntityID, *highWaterMark); err != nil {
		return false, fmt.Errorf("failed to store paid seats: %w", err)
	}

	s.logger.Info("applied high water mark to subscription",
		"subscription_id", subscriptionID,
		"entity_id", cfg.EntityID,
		"quantity", *highWaterMark,
		"previous_paid_seats", *paidSeats,
		"direction", direction,
	)

	return true, nil
}

// ResetAfterRenewal re-anchors peak tracking to the new billing period and
// sets the billed quantity to the real current seat count. This is what
// lets the billed quantity decrease after a period that peaked higher: the
// peak was charged by the renewal invoice, and the new period starts from
// the actual roster size.
//
// Even when no quantity change is needed, the period anchor is still reset;
// the return value is false in that case because no provider call was made.
func (s *HighWaterMarkService) ResetAfterRenewal(ctx context.Context, subscriptionID string, newPeriodStart time.Time) (bool, error) {
	if !s.flags.IsGloballyEnabled(ctx, models.FlagHWMSeatBilling) {
		return false, nil
	}
	if s.gateway == nil {
		return false, ErrGatewayNotConfigured
	}

	cfg, err := s.repos.BillingConfig.GetBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("failed to load billing configuration: %w", err)
	}
	if cfg == nil {
		s.logger.Debug("no billing configuration for subscription", "subscription_id", subscriptionID)
		return false, nil
	}
	if cfg.BillingPeriod != models.BillingPeriodMonthly {
		return false, nil
	}

	count, known, err := s.repos.Membership.CountByEntity(ctx, cfg.EntityID)
	if err != nil {
		return false, fmt.Errorf("failed to count members: %w", err)
	}
	if !known {
		s.logger.Warn("member count unavailable, skipping post-renewal reset", "entity_id", cfg.EntityID)
		return false, nil
	}

	if cfg.PaidSeats != nil && count == *cfg.PaidSeats {
		// No quantity change, but the peak-tracking window still moves to
		// the new period.
		if err := s.repos.BillingConfig.ResetHighWaterMark(ctx, cfg.EntityID, count, newPeriodStart); err != nil {
			return false, fmt.Errorf("failed to re-anchor high water mark: %w", err)
		}
		s.logger.Debug("renewal reset without quantity change",
			"subscription_id", subscriptionID, "seats", count)
		return false, nil
	}

	if err := s.gateway.UpdateSubscriptionQuantity(ctx, provider.UpdateQuantityParams{
		SubscriptionID:     subscriptionID,
		SubscriptionItemID: cfg.SubscriptionItemID,
		Quantity:           count,
		ProrationBehavior:  provider.ProrationBehaviorNone,
	}); err != nil {
		return false, fmt.Errorf("failed to update subscription quantity: %w", err)
	}

	if err := s.repos.BillingConfig.ResetHighWaterMark(ctx, cfg.EntityID, count, newPeriodStart); err != nil {
		return false, fmt.Errorf("failed to re-anchor high water mark: %w", err)
	}
	if err := s.repos.BillingConfig.UpdatePaidSeats(ctx, cfg.EntityID, count); err != nil {
		return false, fmt.Errorf("failed to store paid seats: %w", err)
	}

	s.logger.Info("reset subscription after renewal",
		"subscription_id", subscriptionID,
		"entity_id", cfg.EntityID,
		"seats", count,
		"period_start", newPeriodStart,
	)

	return true, nil
}
