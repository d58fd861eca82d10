// Package provider abstracts the external billing provider. The
// reconciliation engine only drives subscription quantities; invoicing,
// payment collection, and the provider's ledger stay on the provider side.
package provider

import (
	"context"
	"time"
)

// ProrationBehaviorNone disables provider-side proration on a quantity
// update. High-water-mark billing performs its own period accounting, so
// the provider must not also prorate mid-cycle changes.
const ProrationBehaviorNone = "none"

// Subscription is the provider-side view of a subscription, reduced to the
// fields the reconciliation engine reads.
type Subscription struct {
	ID                 string
	ItemID             string
	Quantity           int64
	Status             string
	CurrentPeriodStart time.Time
}

// UpdateQuantityParams describes a subscription quantity change.
type UpdateQuantityParams struct {
	SubscriptionID     string
	SubscriptionItemID string
	Quantity           int64
	// ProrationBehavior is passed through to the provider. Callers that
	// manage their own period accounting must set ProrationBehaviorNone.
	ProrationBehavior string
}

// SubscriptionGateway is the only surface that talks to the payment
// provider. Calls may block on network I/O and carry a bounded timeout;
// callers treat a timeout like any other provider failure.
type SubscriptionGateway interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	UpdateSubscriptionQuantity(ctx context.Context, params UpdateQuantityParams) error
}
