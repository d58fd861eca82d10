package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/provider"
)

var periodJan = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestHighWaterMark_UpdateOnAddition(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.createTeam(t, 1, nil, 10, 11, 12)
	env.createConfig(t, 1, models.BillingModelSeats, models.BillingPeriodMonthly, "sub_1")

	if err := env.hwm.UpdateOnAddition(ctx, 1, periodJan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := env.config(t, 1)
	if cfg.HighWaterMark == nil || *cfg.HighWaterMark != 3 {
		t.Fatalf("high water mark = %v, want 3", cfg.HighWaterMark)
	}

	// A removal followed by an addition cannot lower the mark
	if _, err := env.repos.Membership.RemoveMember(ctx, 1, 12); err != nil {
		t.Fatalf("failed to remove member: %v", err)
	}
	if _, err := env.repos.Membership.RemoveMember(ctx, 1, 11); err != nil {
		t.Fatalf("failed to remove member: %v", err)
	}
	if err := env.hwm.UpdateOnAddition(ctx, 1, periodJan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg = env.config(t, 1)
	if *cfg.HighWaterMark != 3 {
		t.Errorf("high water mark = %d, want 3 after roster shrank", *cfg.HighWaterMark)
	}
}

func TestHighWaterMark_UpdateOnAdditionGates(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.createTeam(t, 1, nil, 10)

	// No configuration: silently skipped
	if err := env.hwm.UpdateOnAddition(ctx, 1, periodJan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// ACTIVE_USERS configuration: peak tracking does not apply
	env.createConfig(t, 1, models.BillingModelActiveUsers, models.BillingPeriodMonthly, "sub_1")
	if err := env.hwm.UpdateOnAddition(ctx, 1, periodJan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg := env.config(t, 1); cfg.HighWaterMark != nil {
		t.Error("ACTIVE_USERS config should not track a high water mark")
	}

	// Flag disabled: no-op even for SEATS
	env.createConfig(t, 2, models.BillingModelSeats, models.BillingPeriodMonthly, "sub_2")
	env.createTeam(t, 2, nil, 20)
	if err := env.flags.SetFlag(ctx, models.FlagHWMSeatBilling, false); err != nil {
		t.Fatalf("failed to disable flag: %v", err)
	}
	if err := env.hwm.UpdateOnAddition(ctx, 2, periodJan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg := env.config(t, 2); cfg.HighWaterMark != nil {
		t.Error("disabled flag should skip the high water mark update")
	}
}

func TestHighWaterMark_ApplyToSubscription(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.createTeam(t, 1, nil, 10)
	env.createConfig(t, 1, models.BillingModelSeats, models.BillingPeriodMonthly, "sub_1")
	env.gateway.sub = &provider.Subscription{ID: "sub_1", ItemID: "si_sub_1", Quantity: 1, Status: "active"}

	// Track a peak of 4, then shrink the roster back to 1
	for _, u := range []int64{11, 12, 13} {
		if _, err := env.repos.Membership.AddMember(ctx, 1, u); err != nil {
			t.Fatal(err)
		}
	}
	if err := env.hwm.UpdateOnAddition(ctx, 1, periodJan); err != nil {
		t.Fatal(err)
	}
	for _, u := range []int64{11, 12, 13} {
		if _, err := env.repos.Membership.RemoveMember(ctx, 1, u); err != nil {
			t.Fatal(err)
		}
	}

	applied, err := env.hwm.ApplyToSubscription(ctx, "sub_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Fatal("expected quantity to be applied")
	}

	// Paid seats were unknown, so the live subscription was fetched once
	if env.gateway.getCalls != 1 {
		t.Errorf("get calls = %d, want 1", env.gateway.getCalls)
	}
	if len(env.gateway.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(env.gateway.updates))
	}
	update := env.gateway.updates[0]
	if update.Quantity != 4 {
		t.Errorf("quantity = %d, want the peak 4", update.Quantity)
	}
	if update.ProrationBehavior != provider.ProrationBehaviorNone {
		t.Errorf("proration behavior = %q, want none", update.ProrationBehavior)
	}

	cfg := env.config(t, 1)
	if cfg.PaidSeats == nil || *cfg.PaidSeats != 4 {
		t.Errorf("paid seats = %v, want 4", cfg.PaidSeats)
	}

	// Second apply is a no-op: quantity already at the mark
	applied, err = env.hwm.ApplyToSubscription(ctx, "sub_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("expected idempotent second apply")
	}
	if len(env.gateway.updates) != 1 {
		t.Errorf("updates = %d after second apply, want still 1", len(env.gateway.updates))
	}
}

func TestHighWaterMark_ApplySkipsNonMonthly(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.createTeam(t, 1, nil, 10, 11)
	env.createConfig(t, 1, models.BillingModelSeats, models.BillingPeriodAnnually, "sub_1")

	applied, err := env.hwm.ApplyToSubscription(ctx, "sub_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("annual configuration should never apply a high water mark")
	}
	if len(env.gateway.updates) != 0 {
		t.Errorf("updates = %d, want 0", len(env.gateway.updates))
	}
}

func TestHighWaterMark_ApplyUnknownSubscription(t *testing.T) {
	env := setupTestEnv(t)

	applied, err := env.hwm.ApplyToSubscription(context.Background(), "sub_missing")
	if err != nil {
		t.Fatalf("missing config is not an error: %v", err)
	}
	if applied {
		t.Error("expected no-op for unknown subscription")
	}
}

func TestHighWaterMark_ApplyWithoutGateway(t *testing.T) {
	env := setupTestEnv(t)
	hwm := NewHighWaterMarkService(env.repos, env.flags, nil, slogDiscard())

	_, err := hwm.ApplyToSubscription(context.Background(), "sub_1")
	if !errors.Is(err, ErrGatewayNotConfigured) {
		t.Errorf("err = %v, want ErrGatewayNotConfigured", err)
	}
}

func TestHighWaterMark_ResetAfterRenewal(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.createTeam(t, 1, nil, 10, 11, 12)
	env.createConfig(t, 1, models.BillingModelSeats, models.BillingPeriodMonthly, "sub_1")

	// Period peaked at 5, paid 5; roster is back to 3
	if err := env.repos.BillingConfig.ResetHighWaterMark(ctx, 1, 5, periodJan); err != nil {
		t.Fatal(err)
	}
	if err := env.repos.BillingConfig.UpdatePaidSeats(ctx, 1, 5); err != nil {
		t.Fatal(err)
	}

	newPeriod := periodJan.AddDate(0, 1, 0)
	updated, err := env.hwm.ResetAfterRenewal(ctx, "sub_1", newPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated {
		t.Fatal("expected quantity change")
	}

	if got := env.gateway.lastQuantity(t); got != 3 {
		t.Errorf("quantity = %d, want current roster 3", got)
	}

	cfg := env.config(t, 1)
	if cfg.HighWaterMark == nil || *cfg.HighWaterMark != 3 {
		t.Errorf("high water mark = %v, want re-baselined 3", cfg.HighWaterMark)
	}
	if cfg.HighWaterMarkPeriodStart == nil || !cfg.HighWaterMarkPeriodStart.Equal(newPeriod) {
		t.Errorf("period start = %v, want %v", cfg.HighWaterMarkPeriodStart, newPeriod)
	}
	if cfg.PaidSeats == nil || *cfg.PaidSeats != 3 {
		t.Errorf("paid seats = %v, want 3", cfg.PaidSeats)
	}
}

func TestHighWaterMark_ResetWithoutQuantityChange(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.createTeam(t, 1, nil, 10, 11, 12)
	env.createConfig(t, 1, models.BillingModelSeats, models.BillingPeriodMonthly, "sub_1")

	if err := env.repos.BillingConfig.ResetHighWaterMark(ctx, 1, 3, periodJan); err != nil {
		t.Fatal(err)
	}
	if err := env.repos.BillingConfig.UpdatePaidSeats(ctx, 1, 3); err != nil {
		t.Fatal(err)
	}

	// Count equals paid seats: no provider call, but the anchor still moves
	newPeriod := periodJan.AddDate(0, 1, 0)
	updated, err := env.hwm.ResetAfterRenewal(ctx, "sub_1", newPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated {
		t.Error("expected no quantity change")
	}
	if len(env.gateway.updates) != 0 {
		t.Errorf("updates = %d, want 0", len(env.gateway.updates))
	}

	cfg := env.config(t, 1)
	if !cfg.HighWaterMarkPeriodStart.Equal(newPeriod) {
		t.Errorf("period start = %v, want re-anchored %v", cfg.HighWaterMarkPeriodStart, newPeriod)
	}
}
