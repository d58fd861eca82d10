package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/repository"
	"github.com/seatsync/seatsync-api/internal/service"
)

// AdminHandler handles operational endpoints: feature flags, billing
// configuration management, roster setup, and proration run inspection.
type AdminHandler struct {
	repos    *repository.Repositories
	services *service.Services
	logger   *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(repos *repository.Repositories, services *service.Services, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		repos:    repos,
		services: services,
		logger:   logger,
	}
}

// GetFlagInput represents a feature flag read request.
type GetFlagInput struct {
	Name string `path:"name" doc:"Flag name"`
}

// FlagOutput represents a feature flag state.
type FlagOutput struct {
	Body struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled" doc:"Effective value, including the configured default"`
	}
}

// GetFlag returns the effective value of a feature flag.
func (h *AdminHandler) GetFlag(ctx context.Context, input *GetFlagInput) (*FlagOutput, error) {
	out := &FlagOutput{}
	out.Body.Name = input.Name
	out.Body.Enabled = h.services.Flags.IsGloballyEnabled(ctx, input.Name)
	return out, nil
}

// SetFlagInput represents a feature flag write request.
type SetFlagInput struct {
	Name string `path:"name" doc:"Flag name"`
	Body struct {
		Enabled bool `json:"enabled"`
	}
}

// SetFlag persists a feature flag value, overriding the configured default.
func (h *AdminHandler) SetFlag(ctx context.Context, input *SetFlagInput) (*FlagOutput, error) {
	if err := h.services.Flags.SetFlag(ctx, input.Name, input.Body.Enabled); err != nil {
		h.logger.Error("failed to set feature flag", "flag", input.Name, "error", err)
		return nil, huma.Error500InternalServerError("failed to set feature flag")
	}

	out := &FlagOutput{}
	out.Body.Name = input.Name
	out.Body.Enabled = input.Body.Enabled
	return out, nil
}

// UpsertBillingConfigInput represents a billing configuration write request.
type UpsertBillingConfigInput struct {
	EntityID int64 `path:"entityId" doc:"Team or organization ID"`
	Body     struct {
		BillingModel       string     `json:"billing_model" enum:"SEATS,ACTIVE_USERS"`
		BillingPeriod      string     `json:"billing_period,omitempty" enum:"MONTHLY,ANNUALLY," doc:"Empty when no recurring period is configured"`
		SubscriptionID     string     `json:"subscription_id,omitempty"`
		SubscriptionItemID string     `json:"subscription_item_id,omitempty"`
		CustomerID         string     `json:"customer_id,omitempty"`
		PricePerSeatUSD    float64    `json:"price_per_seat_usd,omitempty"`
		SubscriptionStart  *time.Time `json:"subscription_start,omitempty"`
		TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	}
}

// UpsertBillingConfigOutput represents a billing configuration response.
type UpsertBillingConfigOutput struct {
	Body models.BillingConfiguration
}

// UpsertBillingConfig creates or replaces an entity's billing configuration.
// High-water-mark state and paid seats are owned by the reconciliation
// engine and are not writable here.
func (h *AdminHandler) UpsertBillingConfig(ctx context.Context, input *UpsertBillingConfigInput) (*UpsertBillingConfigOutput, error) {
	cfg := &models.BillingConfiguration{
		EntityID:           input.EntityID,
		BillingModel:       models.BillingModel(input.Body.BillingModel),
		BillingPeriod:      models.BillingPeriod(input.Body.BillingPeriod),
		SubscriptionID:     input.Body.SubscriptionID,
		SubscriptionItemID: input.Body.SubscriptionItemID,
		CustomerID:         input.Body.CustomerID,
		PricePerSeatUSD:    input.Body.PricePerSeatUSD,
		SubscriptionStart:  input.Body.SubscriptionStart,
		TrialEndsAt:        input.Body.TrialEndsAt,
	}

	// Carry over engine-owned state so a config edit never wipes it.
	existing, err := h.repos.BillingConfig.GetByEntityID(ctx, input.EntityID)
	if err != nil {
		h.logger.Error("failed to load billing configuration",
			"entity_id", input.EntityID, "error", err)
		return nil, huma.Error500InternalServerError("failed to load billing configuration")
	}
	if existing != nil {
		cfg.PaidSeats = existing.PaidSeats
		cfg.HighWaterMark = existing.HighWaterMark
		cfg.HighWaterMarkPeriodStart = existing.HighWaterMarkPeriodStart
		cfg.CreatedAt = existing.CreatedAt
	}

	if err := h.repos.BillingConfig.Upsert(ctx, cfg); err != nil {
		h.logger.Error("failed to upsert billing configuration",
			"entity_id", input.EntityID, "error", err)
		return nil, huma.Error500InternalServerError("failed to save billing configuration")
	}

	stored, err := h.repos.BillingConfig.GetByEntityID(ctx, input.EntityID)
	if err != nil || stored == nil {
		h.logger.Error("failed to reload billing configuration",
			"entity_id", input.EntityID, "error", err)
		return nil, huma.Error500InternalServerError("failed to reload billing configuration")
	}

	return &UpsertBillingConfigOutput{Body: *stored}, nil
}

// GetBillingConfigInput represents a billing configuration read request.
type GetBillingConfigInput struct {
	EntityID int64 `path:"entityId" doc:"Team or organization ID"`
}

// GetBillingConfig returns an entity's billing configuration.
func (h *AdminHandler) GetBillingConfig(ctx context.Context, input *GetBillingConfigInput) (*UpsertBillingConfigOutput, error) {
	cfg, err := h.repos.BillingConfig.GetByEntityID(ctx, input.EntityID)
	if err != nil {
		h.logger.Error("failed to load billing configuration",
			"entity_id", input.EntityID, "error", err)
		return nil, huma.Error500InternalServerError("failed to load billing configuration")
	}
	if cfg == nil {
		return nil, huma.Error404NotFound("no billing configuration for entity")
	}
	return &UpsertBillingConfigOutput{Body: *cfg}, nil
}

// CreateTeamInput represents a team creation request.
type CreateTeamInput struct {
	Body struct {
		ID          int64  `json:"id,omitempty" doc:"Explicit ID; autogenerated when omitted"`
		Name        string `json:"name" minLength:"1"`
		ParentOrgID *int64 `json:"parent_org_id,omitempty" doc:"Organization the team's seats roll up to"`
	}
}

// CreateTeamOutput represents a team creation response.
type CreateTeamOutput struct {
	Body models.Team
}

// CreateTeam registers a team in the roster.
func (h *AdminHandler) CreateTeam(ctx context.Context, input *CreateTeamInput) (*CreateTeamOutput, error) {
	team := &models.Team{
		ID:          input.Body.ID,
		Name:        input.Body.Name,
		ParentOrgID: input.Body.ParentOrgID,
	}

	if err := h.repos.Membership.CreateTeam(ctx, team); err != nil {
		h.logger.Error("failed to create team", "name", input.Body.Name, "error", err)
		return nil, huma.Error500InternalServerError("failed to create team")
	}

	return &CreateTeamOutput{Body: *team}, nil
}

// ListProrationRunsInput represents a proration run listing request.
type ListProrationRunsInput struct {
	Month string `query:"month" doc:"Calendar month (YYYY-MM, UTC); defaults to the current month"`
}

// ListProrationRunsOutput represents a proration run listing response.
type ListProrationRunsOutput struct {
	Body struct {
		Runs []*models.ProrationRun `json:"runs"`
	}
}

// ListProrationRuns returns the proration batch runs recorded for a month.
func (h *AdminHandler) ListProrationRuns(ctx context.Context, input *ListProrationRunsInput) (*ListProrationRunsOutput, error) {
	monthKey, err := monthOrCurrent(input.Month)
	if err != nil {
		return nil, err
	}

	runs, err := h.repos.ProrationRun.ListByMonth(ctx, monthKey)
	if err != nil {
		h.logger.Error("failed to list proration runs", "month", monthKey, "error", err)
		return nil, huma.Error500InternalServerError("failed to list proration runs")
	}

	out := &ListProrationRunsOutput{}
	out.Body.Runs = runs
	if out.Body.Runs == nil {
		out.Body.Runs = []*models.ProrationRun{}
	}
	return out, nil
}
