package repository

import (
	"context"
	"testing"
)

func TestFeatureFlagRepository_GetNonExistent(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	flag, err := repos.FeatureFlag.Get(ctx, "no-such-flag")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flag != nil {
		t.Error("expected nil for unknown flag")
	}
}

func TestFeatureFlagRepository_SetAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	if err := repos.FeatureFlag.Set(ctx, "hwm-seat-billing", true); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	flag, err := repos.FeatureFlag.Get(ctx, "hwm-seat-billing")
	if err != nil {
		t.Fatalf("failed to get flag: %v", err)
	}
	if flag == nil || !flag.Enabled {
		t.Fatalf("got %+v, want enabled flag", flag)
	}

	// Toggle off
	if err := repos.FeatureFlag.Set(ctx, "hwm-seat-billing", false); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	flag, err = repos.FeatureFlag.Get(ctx, "hwm-seat-billing")
	if err != nil {
		t.Fatalf("failed to get flag: %v", err)
	}
	if flag.Enabled {
		t.Error("expected flag to be disabled")
	}
}
