package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seatsync/seatsync-api/internal/repository"
)

// FeatureFlagService answers globally-scoped flag checks at call time.
// Flags gate strategy behavior per call, never at resolution time: a
// strategy whose feature is disabled still resolves and returns a valid
// no-op result.
type FeatureFlagService struct {
	repo     repository.FeatureFlagRepository
	defaults map[string]bool
	logger   *slog.Logger
}

// NewFeatureFlagService creates a new feature flag service. defaults apply
// when a flag has no database row.
func NewFeatureFlagService(repo repository.FeatureFlagRepository, defaults map[string]bool, logger *slog.Logger) *FeatureFlagService {
	if defaults == nil {
		defaults = map[string]bool{}
	}
	return &FeatureFlagService{
		repo:     repo,
		defaults: defaults,
		logger:   logger,
	}
}

// IsGloballyEnabled reports whether the flag is enabled. Lookup failures
// fall back to the configured default rather than blocking the caller.
func (s *FeatureFlagService) IsGloballyEnabled(ctx context.Context, name string) bool {
	flag, err := s.repo.Get(ctx, name)
	if err != nil {
		s.logger.Warn("failed to read feature flag, using default",
			"flag", name, "default", s.defaults[name], "error", err)
		return s.defaults[name]
	}
	if flag == nil {
		return s.defaults[name]
	}
	return flag.Enabled
}

// SetFlag persists a flag value, overriding the configured default.
func (s *FeatureFlagService) SetFlag(ctx context.Context, name string, enabled bool) error {
	if err := s.repo.Set(ctx, name, enabled); err != nil {
		return fmt.Errorf("failed to set feature flag %s: %w", name, err)
	}
	s.logger.Info("feature flag updated", "flag", name, "enabled", enabled)
	return nil
}
