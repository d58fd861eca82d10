package service

import (
	"context"
	"errors"
	"log/slog"
)

// activeUsersStrategy covers ACTIVE_USERS configurations. Billed quantity
// is computed by the usage-metering path, not by seat reconciliation, so
// renewal-boundary events and quantity syncs are no-ops here. Seat changes
// are still logged for analytics.
type activeUsersStrategy struct {
	seatChangeSvc *SeatChangeService
	logger        *slog.Logger
}

func (s *activeUsersStrategy) HandleInvoiceUpcoming(ctx context.Context, subscriptionID string) InvoiceUpcomingResult {
	return InvoiceUpcomingResult{Applied: false}
}

func (s *activeUsersStrategy) HandlePostRenewalReset(ctx context.Context, subscriptionID string, periodStartUnix int64) PostRenewalResetResult {
	return PostRenewalResetResult{Success: true, Updated: false}
}

func (s *activeUsersStrategy) HandleMemberAddition(ctx context.Context, p MemberChangeParams) error {
	_, err := s.seatChangeSvc.LogAddition(ctx, SeatChangeParams(p))
	if err != nil && !errors.Is(err, ErrDuplicateOperation) {
		return err
	}
	return nil
}

func (s *activeUsersStrategy) HandleMemberRemoval(ctx context.Context, p MemberChangeParams) error {
	_, err := s.seatChangeSvc.LogRemoval(ctx, SeatChangeParams(p))
	if err != nil && !errors.Is(err, ErrDuplicateOperation) {
		return err
	}
	return nil
}

func (s *activeUsersStrategy) SyncBillingQuantity(ctx context.Context, entityID int64) error {
	return nil
}
