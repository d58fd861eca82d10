package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeGateway implements SubscriptionGateway against the Stripe API.
type StripeGateway struct {
	sc      *client.API
	timeout time.Duration
}

// NewStripeGateway creates a Stripe-backed subscription gateway. Every call
// is bounded by timeout.
func NewStripeGateway(secretKey string, timeout time.Duration) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeGateway{
		sc:      sc,
		timeout: timeout,
	}
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	sub, err := g.sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscription %s: %w", subscriptionID, err)
	}

	result := &Subscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
	}

	// Seat subscriptions have a single item carrying the quantity.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		result.ItemID = sub.Items.Data[0].ID
		result.Quantity = sub.Items.Data[0].Quantity
	}

	return result, nil
}

func (g *StripeGateway) UpdateSubscriptionQuantity(ctx context.Context, p UpdateQuantityParams) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.SubscriptionItemParams{
		Params:   stripe.Params{Context: ctx},
		Quantity: stripe.Int64(p.Quantity),
	}
	if p.ProrationBehavior != "" {
		params.ProrationBehavior = stripe.String(p.ProrationBehavior)
	}

	if _, err := g.sc.SubscriptionItems.Update(p.SubscriptionItemID, params); err != nil {
		return fmt.Errorf("failed to update quantity for subscription %s: %w", p.SubscriptionID, err)
	}

	return nil
}
