package service

import (
	"context"
	"errors"
	"log/slog"
)

// prorationStrategy covers SEATS configurations without a monthly period
// (annual plans, or no recurring period at all). Quantity changes are
// deliberately deferred to the monthly proration batch, which reads the
// seat change log and issues a separate prorated invoice; touching the
// base subscription quantity here as well would double-charge.
type prorationStrategy struct {
	seatChangeSvc *SeatChangeService
	logger        *slog.Logger
}

func (s *prorationStrategy) HandleInvoiceUpcoming(ctx context.Context, subscriptionID string) InvoiceUpcomingResult {
	return InvoiceUpcomingResult{Applied: false}
}

func (s *prorationStrategy) HandlePostRenewalReset(ctx context.Context, subscriptionID string, periodStartUnix int64) PostRenewalResetResult {
	return PostRenewalResetResult{Success: true, Updated: false}
}

func (s *prorationStrategy) HandleMemberAddition(ctx context.Context, p MemberChangeParams) error {
	_, err := s.seatChangeSvc.LogAddition(ctx, SeatChangeParams(p))
	if err != nil && !errors.Is(err, ErrDuplicateOperation) {
		return err
	}
	return nil
}

func (s *prorationStrategy) HandleMemberRemoval(ctx context.Context, p MemberChangeParams) error {
	_, err := s.seatChangeSvc.LogRemoval(ctx, SeatChangeParams(p))
	if err != nil && !errors.Is(err, ErrDuplicateOperation) {
		return err
	}
	return nil
}

func (s *prorationStrategy) SyncBillingQuantity(ctx context.Context, entityID int64) error {
	s.logger.Debug("quantity sync deferred to monthly proration batch", "entity_id", entityID)
	return nil
}
