package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/service"
)

// SeatChangesHandler exposes the seat change audit log for the proration
// pipeline and internal tooling.
type SeatChangesHandler struct {
	seatChangeSvc *service.SeatChangeService
	logger        *slog.Logger
}

// NewSeatChangesHandler creates a new seat changes handler.
func NewSeatChangesHandler(seatChangeSvc *service.SeatChangeService, logger *slog.Logger) *SeatChangesHandler {
	return &SeatChangesHandler{
		seatChangeSvc: seatChangeSvc,
		logger:        logger,
	}
}

// monthOrCurrent validates an optional YYYY-MM month key, defaulting to the
// current UTC month.
func monthOrCurrent(month string) (string, error) {
	if month == "" {
		return models.MonthKeyFor(time.Now()), nil
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return "", huma.Error422UnprocessableEntity("month must be formatted YYYY-MM")
	}
	return month, nil
}

// GetMonthlyChangesInput represents a monthly summary request.
type GetMonthlyChangesInput struct {
	EntityID int64  `path:"entityId" doc:"Team or organization ID"`
	Month    string `query:"month" doc:"Calendar month (YYYY-MM, UTC); defaults to the current month"`
}

// GetMonthlyChangesOutput represents a monthly summary response.
type GetMonthlyChangesOutput struct {
	Body models.MonthlyChangeSummary
}

// GetMonthlyChanges returns the aggregated seat changes for one entity and
// month. Net change is clamped at zero.
func (h *SeatChangesHandler) GetMonthlyChanges(ctx context.Context, input *GetMonthlyChangesInput) (*GetMonthlyChangesOutput, error) {
	monthKey, err := monthOrCurrent(input.Month)
	if err != nil {
		return nil, err
	}

	summary, err := h.seatChangeSvc.GetMonthlyChanges(ctx, input.EntityID, monthKey)
	if err != nil {
		h.logger.Error("failed to summarize seat changes",
			"entity_id", input.EntityID, "month", monthKey, "error", err)
		return nil, huma.Error500InternalServerError("failed to summarize seat changes")
	}

	return &GetMonthlyChangesOutput{Body: *summary}, nil
}

// GetUnprocessedChangesInput represents an unprocessed-entries request.
type GetUnprocessedChangesInput struct {
	EntityID int64  `path:"entityId" doc:"Team or organization ID"`
	Month    string `query:"month" doc:"Calendar month (YYYY-MM, UTC); defaults to the current month"`
}

// GetUnprocessedChangesOutput represents an unprocessed-entries response.
type GetUnprocessedChangesOutput struct {
	Body struct {
		Entries []*models.SeatChangeLogEntry `json:"entries"`
	}
}

// GetUnprocessedChanges lists the audit entries no proration invoice has
// consumed yet.
func (h *SeatChangesHandler) GetUnprocessedChanges(ctx context.Context, input *GetUnprocessedChangesInput) (*GetUnprocessedChangesOutput, error) {
	monthKey, err := monthOrCurrent(input.Month)
	if err != nil {
		return nil, err
	}

	entries, err := h.seatChangeSvc.GetUnprocessedChanges(ctx, input.EntityID, monthKey)
	if err != nil {
		h.logger.Error("failed to load unprocessed seat changes",
			"entity_id", input.EntityID, "month", monthKey, "error", err)
		return nil, huma.Error500InternalServerError("failed to load unprocessed seat changes")
	}

	out := &GetUnprocessedChangesOutput{}
	out.Body.Entries = entries
	if out.Body.Entries == nil {
		out.Body.Entries = []*models.SeatChangeLogEntry{}
	}
	return out, nil
}

// MarkProcessedInput represents a mark-processed request.
type MarkProcessedInput struct {
	EntityID int64 `path:"entityId" doc:"Team or organization ID"`
	Body     struct {
		Month       string `json:"month,omitempty" doc:"Calendar month (YYYY-MM, UTC); defaults to the current month"`
		ProrationID string `json:"proration_id,omitempty" doc:"Invoice or run reference; generated when omitted"`
	}
}

// MarkProcessedOutput represents a mark-processed response.
type MarkProcessedOutput struct {
	Body struct {
		Claimed     int64  `json:"claimed" doc:"Number of entries stamped"`
		ProrationID string `json:"proration_id"`
	}
}

// MarkProcessed stamps all unprocessed entries for the entity and month in
// one atomic update.
func (h *SeatChangesHandler) MarkProcessed(ctx context.Context, input *MarkProcessedInput) (*MarkProcessedOutput, error) {
	monthKey, err := monthOrCurrent(input.Body.Month)
	if err != nil {
		return nil, err
	}

	prorationID := input.Body.ProrationID
	if prorationID == "" {
		prorationID = ulid.Make().String()
	}

	claimed, err := h.seatChangeSvc.MarkAsProcessed(ctx, input.EntityID, monthKey, prorationID)
	if err != nil {
		h.logger.Error("failed to mark seat changes processed",
			"entity_id", input.EntityID, "month", monthKey, "error", err)
		return nil, huma.Error500InternalServerError("failed to mark seat changes processed")
	}

	out := &MarkProcessedOutput{}
	out.Body.Claimed = claimed
	out.Body.ProrationID = prorationID
	return out, nil
}
