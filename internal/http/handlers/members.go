package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/seatsync/seatsync-api/internal/repository"
	"github.com/seatsync/seatsync-api/internal/service"
)

// MembersHandler handles roster mutations. Every mutation goes through the
// reconciliation engine: the roster write and the audit log entry succeed or
// fail the request, while provider sync failures never do.
type MembersHandler struct {
	repos    *repository.Repositories
	services *service.Services
	logger   *slog.Logger
}

// NewMembersHandler creates a new members handler.
func NewMembersHandler(repos *repository.Repositories, services *service.Services, logger *slog.Logger) *MembersHandler {
	return &MembersHandler{
		repos:    repos,
		services: services,
		logger:   logger,
	}
}

// AddMemberInput represents a member addition request.
type AddMemberInput struct {
	EntityID int64 `path:"entityId" doc:"Team or organization ID"`
	Body     struct {
		UserID      int64   `json:"user_id" doc:"User occupying the seat"`
		ActorUserID *int64  `json:"actor_user_id,omitempty" doc:"User who performed the change"`
		OperationID *string `json:"operation_id,omitempty" doc:"Idempotency key; retries with the same key are dropped"`
	}
}

// AddMemberOutput represents a member addition response.
type AddMemberOutput struct {
	Body struct {
		Added        bool   `json:"added" doc:"False when the user already held a seat"`
		BillingModel string `json:"billing_model,omitempty" doc:"Billing model of the entity's billing owner, if any"`
	}
}

// AddMember adds a user to an entity's roster and dispatches the seat
// addition to the entity's reconciliation strategy.
func (h *MembersHandler) AddMember(ctx context.Context, input *AddMemberInput) (*AddMemberOutput, error) {
	added, err := h.repos.Membership.AddMember(ctx, input.EntityID, input.Body.UserID)
	if err != nil {
		h.logger.Error("failed to add member", "entity_id", input.EntityID, "error", err)
		return nil, huma.Error500InternalServerError("failed to add member")
	}

	out := &AddMemberOutput{}
	out.Body.Added = added
	if !added {
		// Already a member; nothing changed, nothing to reconcile.
		return out, nil
	}

	lookup, err := h.resolveForEntity(ctx, input.EntityID)
	if err != nil {
		h.logger.Error("failed to resolve strategy", "entity_id", input.EntityID, "error", err)
		return nil, huma.Error500InternalServerError("failed to resolve billing strategy")
	}
	if lookup == nil {
		return out, nil
	}
	out.Body.BillingModel = string(lookup.BillingModel)

	if err := lookup.Strategy.HandleMemberAddition(ctx, service.MemberChangeParams{
		EntityID:      input.EntityID,
		SubjectUserID: &input.Body.UserID,
		ActorUserID:   input.Body.ActorUserID,
		SeatCount:     1,
		OperationID:   input.Body.OperationID,
	}); err != nil {
		h.logger.Error("failed to record seat addition",
			"entity_id", input.EntityID, "user_id", input.Body.UserID, "error", err)
		return nil, huma.Error500InternalServerError("failed to record seat change")
	}

	return out, nil
}

// RemoveMemberInput represents a member removal request.
type RemoveMemberInput struct {
	EntityID    int64   `path:"entityId" doc:"Team or organization ID"`
	UserID      int64   `path:"userId" doc:"User vacating the seat"`
	ActorUserID *int64  `query:"actor_user_id" doc:"User who performed the change"`
	OperationID *string `query:"operation_id" doc:"Idempotency key; retries with the same key are dropped"`
}

// RemoveMemberOutput represents a member removal response.
type RemoveMemberOutput struct {
	Body struct {
		Removed      bool   `json:"removed" doc:"False when the user held no seat"`
		BillingModel string `json:"billing_model,omitempty"`
	}
}

// RemoveMember removes a user from an entity's roster and dispatches the
// seat removal to the entity's reconciliation strategy.
func (h *MembersHandler) RemoveMember(ctx context.Context, input *RemoveMemberInput) (*RemoveMemberOutput, error) {
	removed, err := h.repos.Membership.RemoveMember(ctx, input.EntityID, input.UserID)
	if err != nil {
		h.logger.Error("failed to remove member", "entity_id", input.EntityID, "error", err)
		return nil, huma.Error500InternalServerError("failed to remove member")
	}

	out := &RemoveMemberOutput{}
	out.Body.Removed = removed
	if !removed {
		return out, nil
	}

	lookup, err := h.resolveForEntity(ctx, input.EntityID)
	if err != nil {
		h.logger.Error("failed to resolve strategy", "entity_id", input.EntityID, "error", err)
		return nil, huma.Error500InternalServerError("failed to resolve billing strategy")
	}
	if lookup == nil {
		return out, nil
	}
	out.Body.BillingModel = string(lookup.BillingModel)

	if err := lookup.Strategy.HandleMemberRemoval(ctx, service.MemberChangeParams{
		EntityID:      input.EntityID,
		SubjectUserID: &input.UserID,
		ActorUserID:   input.ActorUserID,
		SeatCount:     1,
		OperationID:   input.OperationID,
	}); err != nil {
		h.logger.Error("failed to record seat removal",
			"entity_id", input.EntityID, "user_id", input.UserID, "error", err)
		return nil, huma.Error500InternalServerError("failed to record seat change")
	}

	return out, nil
}

// resolveForEntity resolves the strategy against the entity's billing owner,
// so members added to a team under a billed organization drive the
// organization's strategy.
func (h *MembersHandler) resolveForEntity(ctx context.Context, entityID int64) (*service.StrategyLookupResult, error) {
	ownerID, err := h.services.SeatChange.BillingOwner(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return h.services.Resolver.ResolveByEntity(ctx, ownerID)
}
