package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/seatsync/seatsync-api/internal/config"
	"github.com/seatsync/seatsync-api/internal/service"
)

// StripeWebhookHandler handles Stripe webhook events.
type StripeWebhookHandler struct {
	cfg      *config.Config
	services *service.Services
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a new Stripe webhook handler.
func NewStripeWebhookHandler(cfg *config.Config, services *service.Services, logger *slog.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		cfg:      cfg,
		services: services,
		logger:   logger,
	}
}

// HandleWebhook processes incoming Stripe webhooks.
// This is a raw HTTP handler since huma doesn't handle raw body verification well.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536 // 64KB

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// Verify webhook signature
	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, h.cfg.StripeWebhookSecret)
	if err != nil {
		h.logger.Error("failed to verify webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	// Handle the event. Per-tenant billing failures never fail the
	// delivery: Stripe retries would re-run every other tenant's handling
	// too, so errors are logged and the event is acknowledged.
	ctx := r.Context()
	if err := h.handleEvent(ctx, event); err != nil {
		h.logger.Error("failed to handle webhook event", "type", event.Type, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleEvent routes events to appropriate handlers.
func (h *StripeWebhookHandler) handleEvent(ctx context.Context, event stripe.Event) error {
	h.logger.Info("received Stripe webhook", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "invoice.upcoming":
		return h.handleInvoiceUpcoming(ctx, event)

	case "invoice.paid":
		return h.handleInvoicePaid(ctx, event)

	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

// handleInvoiceUpcoming fires shortly before Stripe generates the renewal
// invoice. This is the window in which the billed quantity must be raised to
// the period's peak so the renewal charges for it.
func (h *StripeWebhookHandler) handleInvoiceUpcoming(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if invoice.Subscription == nil {
		return nil
	}
	subscriptionID := invoice.Subscription.ID

	lookup, err := h.services.Resolver.ResolveBySubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to resolve strategy: %w", err)
	}
	if lookup == nil {
		h.logger.Debug("upcoming invoice for unmanaged subscription", "subscription_id", subscriptionID)
		return nil
	}

	result := lookup.Strategy.HandleInvoiceUpcoming(ctx, subscriptionID)
	h.logger.Info("processed upcoming invoice",
		"subscription_id", subscriptionID,
		"billing_model", lookup.BillingModel,
		"applied", result.Applied,
	)

	return nil
}

// handleInvoicePaid handles renewal payments. Only subscription-cycle
// invoices mark a period boundary; one-off and proration invoices are
// ignored here.
func (h *StripeWebhookHandler) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if invoice.Subscription == nil {
		return nil
	}
	if invoice.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		h.logger.Debug("ignoring non-cycle invoice",
			"invoice_id", invoice.ID, "billing_reason", invoice.BillingReason)
		return nil
	}
	subscriptionID := invoice.Subscription.ID

	lookup, err := h.services.Resolver.ResolveBySubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to resolve strategy: %w", err)
	}
	if lookup == nil {
		h.logger.Debug("cycle invoice for unmanaged subscription", "subscription_id", subscriptionID)
		return nil
	}

	periodStart := renewalPeriodStart(&invoice)
	if periodStart == 0 {
		h.logger.Warn("cycle invoice carries no period start, skipping reset",
			"invoice_id", invoice.ID, "subscription_id", subscriptionID)
		return nil
	}

	result := lookup.Strategy.HandlePostRenewalReset(ctx, subscriptionID, periodStart)
	if !result.Success {
		h.logger.Error("post-renewal reset reported failure",
			"subscription_id", subscriptionID, "error", result.Error)
		return nil
	}

	h.logger.Info("processed renewal invoice",
		"subscription_id", subscriptionID,
		"billing_model", lookup.BillingModel,
		"updated", result.Updated,
	)

	return nil
}

// renewalPeriodStart extracts the new billing period start from a cycle
// invoice. The subscription object in webhook payloads is not expanded, so
// the line item period is the reliable source.
func renewalPeriodStart(invoice *stripe.Invoice) int64 {
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Period != nil && line.Period.Start > 0 {
				return line.Period.Start
			}
		}
	}
	return invoice.PeriodEnd
}
