// Package service implements the seat billing reconciliation engine.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/provider"
	"github.com/seatsync/seatsync-api/internal/repository"
)

// MemberChangeParams describes one seat mutation entering the engine.
type MemberChangeParams struct {
	EntityID      int64
	SubjectUserID *int64
	ActorUserID   *int64
	SeatCount     int
	// OperationID is the caller's idempotency key; retried operations with
	// the same id produce at most one audit entry.
	OperationID *string
}

// InvoiceUpcomingResult reports whether an invoice.upcoming dispatch
// actually changed the billed quantity.
type InvoiceUpcomingResult struct {
	Applied bool `json:"applied"`
}

// PostRenewalResetResult reports the outcome of a post-renewal reset.
// Provider failures surface as Success=false with Error set; they are never
// propagated as Go errors because a single tenant's billing failure must
// not fail the webhook delivery that carried it.
type PostRenewalResetResult struct {
	Success bool   `json:"success"`
	Updated bool   `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// ReconciliationStrategy is the per-billing-model behavior behind every
// seat mutation and renewal-boundary event. Implementations never let a
// provider error escape: they log and degrade, and the audit log write
// happens regardless.
type ReconciliationStrategy interface {
	// HandleInvoiceUpcoming runs just before the provider generates a
	// renewal invoice, giving the strategy a chance to adjust the billed
	// quantity first.
	HandleInvoiceUpcoming(ctx context.Context, subscriptionID string) InvoiceUpcomingResult

	// HandlePostRenewalReset runs after a renewal payment succeeds.
	// periodStartUnix is the new billing period start in epoch seconds, as
	// delivered by the provider webhook.
	HandlePostRenewalReset(ctx context.Context, subscriptionID string, periodStartUnix int64) PostRenewalResetResult

	// HandleMemberAddition and HandleMemberRemoval run synchronously with
	// roster mutations. The returned error covers the audit write only;
	// provider failures are swallowed.
	HandleMemberAddition(ctx context.Context, p MemberChangeParams) error
	HandleMemberRemoval(ctx context.Context, p MemberChangeParams) error

	// SyncBillingQuantity reconciles the provider quantity without writing
	// an audit entry, for callers that already logged the change.
	SyncBillingQuantity(ctx context.Context, entityID int64) error
}

// StrategyLookupResult is the outcome of a strategy resolution. It is
// resolved per call and never cached: configuration can change between
// calls.
type StrategyLookupResult struct {
	Strategy      ReconciliationStrategy
	BillingModel  models.BillingModel
	BillingPeriod models.BillingPeriod
}

// StrategyResolver maps a billing configuration to its reconciliation
// strategy. Pure lookup and dispatch; no side effects.
type StrategyResolver struct {
	repos         *repository.Repositories
	seatChangeSvc *SeatChangeService
	hwmSvc        *HighWaterMarkService
	gateway       provider.SubscriptionGateway
	logger        *slog.Logger
}

// NewStrategyResolver creates a new strategy resolver.
func NewStrategyResolver(repos *repository.Repositories, seatChangeSvc *SeatChangeService, hwmSvc *HighWaterMarkService, gateway provider.SubscriptionGateway, logger *slog.Logger) *StrategyResolver {
	return &StrategyResolver{
		repos:         repos,
		seatChangeSvc: seatChangeSvc,
		hwmSvc:        hwmSvc,
		gateway:       gateway,
		logger:        logger,
	}
}

// ResolveByEntity looks up the configuration for an entity and returns the
// matching strategy. A nil result means no configuration exists, which is
// "nothing to reconcile", not a fault.
func (r *StrategyResolver) ResolveByEntity(ctx context.Context, entityID int64) (*StrategyLookupResult, error) {
	cfg, err := r.repos.BillingConfig.GetByEntityID(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load billing configuration for entity %d: %w", entityID, err)
	}
	if cfg == nil {
		r.logger.Debug("no billing configuration for entity", "entity_id", entityID)
		return nil, nil
	}
	return r.resultFor(cfg), nil
}

// ResolveBySubscription looks up the configuration by provider subscription
// id. A subscription id identifies at most one configuration.
func (r *StrategyResolver) ResolveBySubscription(ctx context.Context, subscriptionID string) (*StrategyLookupResult, error) {
	cfg, err := r.repos.BillingConfig.GetBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load billing configuration for subscription %s: %w", subscriptionID, err)
	}
	if cfg == nil {
		r.logger.Debug("no billing configuration for subscription", "subscription_id", subscriptionID)
		return nil, nil
	}
	return r.resultFor(cfg), nil
}

// resultFor applies the total, deterministic mapping rule:
// ACTIVE_USERS -> active-users strategy; SEATS+MONTHLY -> high-water-mark
// strategy; SEATS with any other period (annual or none) -> proration
// strategy.
func (r *StrategyResolver) resultFor(cfg *models.BillingConfiguration) *StrategyLookupResult {
	result := &StrategyLookupResult{
		BillingModel:  cfg.BillingModel,
		BillingPeriod: cfg.BillingPeriod,
	}

	switch {
	case cfg.BillingModel == models.BillingModelActiveUsers:
		result.Strategy = &activeUsersStrategy{seatChangeSvc: r.seatChangeSvc, logger: r.logger}
	case cfg.BillingPeriod == models.BillingPeriodMonthly:
		result.Strategy = &hwmStrategy{
			repos:         r.repos,
			seatChangeSvc: r.seatChangeSvc,
			hwmSvc:        r.hwmSvc,
			gateway:       r.gateway,
			logger:        r.logger,
		}
	default:
		result.Strategy = &prorationStrategy{seatChangeSvc: r.seatChangeSvc, logger: r.logger}
	}

	return result
}
