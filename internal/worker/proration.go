// Package worker runs the monthly proration batch.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/repository"
	"github.com/seatsync/seatsync-api/internal/service"
)

// ProrationInvoicer issues the prorated invoice for one entity's monthly net
// seat change. Invoice construction lives outside the reconciliation engine;
// the default implementation only logs what would be billed.
type ProrationInvoicer interface {
	InvoiceNetChange(ctx context.Context, summary *models.MonthlyChangeSummary, cfg *models.BillingConfiguration) error
}

// LoggingInvoicer is the default ProrationInvoicer. It records what a real
// invoicer would bill without calling the provider.
type LoggingInvoicer struct {
	Logger *slog.Logger
}

func (i *LoggingInvoicer) InvoiceNetChange(ctx context.Context, summary *models.MonthlyChangeSummary, cfg *models.BillingConfiguration) error {
	i.Logger.Info("proration invoice (dry run)",
		"entity_id", summary.EntityID,
		"month", summary.MonthKey,
		"net_change", summary.NetChange,
		"price_per_seat_usd", cfg.PricePerSeatUSD,
		"amount_usd", float64(summary.NetChange)*cfg.PricePerSeatUSD,
	)
	return nil
}

// ProrationWorker runs the monthly proration batch on a cron schedule. Each
// run walks the entities with unprocessed seat changes for the previous
// month, hands their net change to the invoicer, and stamps the consumed
// entries with the run's ID.
type ProrationWorker struct {
	repos         *repository.Repositories
	seatChangeSvc *service.SeatChangeService
	flags         *service.FeatureFlagService
	invoicer      ProrationInvoicer
	schedule      string
	cron          *cron.Cron
	logger        *slog.Logger
}

// NewProrationWorker creates a new proration worker. invoicer may be nil, in
// which case a logging dry-run invoicer is used.
func NewProrationWorker(
	repos *repository.Repositories,
	seatChangeSvc *service.SeatChangeService,
	flags *service.FeatureFlagService,
	invoicer ProrationInvoicer,
	schedule string,
	logger *slog.Logger,
) *ProrationWorker {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "proration-worker")
	if invoicer == nil {
		invoicer = &LoggingInvoicer{Logger: logger}
	}
	return &ProrationWorker{
		repos:         repos,
		seatChangeSvc: seatChangeSvc,
		flags:         flags,
		invoicer:      invoicer,
		schedule:      schedule,
		logger:        logger,
	}
}

// Start registers the cron schedule and begins running.
func (w *ProrationWorker) Start() error {
	w.cron = cron.New(cron.WithLocation(time.UTC))
	if _, err := w.cron.AddFunc(w.schedule, func() {
		// Each scheduled run settles the previous calendar month.
		monthKey := models.MonthKeyFor(time.Now().UTC().AddDate(0, -1, 0))
		if _, err := w.RunForMonth(context.Background(), monthKey); err != nil {
			w.logger.Error("proration run failed", "month", monthKey, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule proration batch: %w", err)
	}

	w.cron.Start()
	w.logger.Info("started", "schedule", w.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running batch to finish.
func (w *ProrationWorker) Stop() {
	if w.cron == nil {
		return
	}
	w.logger.Info("stopping")
	<-w.cron.Stop().Done()
	w.logger.Info("stopped")
}

// RunForMonth executes one proration batch for the given month. Gated by the
// monthly-proration flag. Per-entity failures are recorded and do not stop
// the batch; entries are only stamped processed after the invoicer accepted
// them.
func (w *ProrationWorker) RunForMonth(ctx context.Context, monthKey string) (*models.ProrationRun, error) {
	if !w.flags.IsGloballyEnabled(ctx, models.FlagMonthlyProration) {
		w.logger.Info("monthly proration disabled, skipping run", "month", monthKey)
		return nil, nil
	}

	run := &models.ProrationRun{
		ID:        ulid.Make().String(),
		MonthKey:  monthKey,
		Status:    models.ProrationRunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := w.repos.ProrationRun.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record proration run: %w", err)
	}

	w.logger.Info("proration run started", "run_id", run.ID, "month", monthKey)

	entityIDs, err := w.repos.SeatChange.ListUnprocessedEntities(ctx, monthKey)
	if err != nil {
		_ = w.repos.ProrationRun.Complete(ctx, run.ID, models.ProrationRunFailed, 0, 0, err.Error())
		return run, fmt.Errorf("failed to list entities with unprocessed changes: %w", err)
	}

	var entityCount, entryCount int
	var firstErr error
	for _, entityID := range entityIDs {
		claimed, err := w.processEntity(ctx, entityID, monthKey, run.ID)
		if err != nil {
			w.logger.Error("failed to prorate entity",
				"run_id", run.ID, "entity_id", entityID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if claimed > 0 {
			entityCount++
			entryCount += int(claimed)
		}
	}

	status := models.ProrationRunCompleted
	errMsg := ""
	if firstErr != nil {
		status = models.ProrationRunFailed
		errMsg = firstErr.Error()
	}
	if err := w.repos.ProrationRun.Complete(ctx, run.ID, status, entityCount, entryCount, errMsg); err != nil {
		w.logger.Error("failed to finalize proration run", "run_id", run.ID, "error", err)
	}

	run.Status = status
	run.EntityCount = entityCount
	run.EntryCount = entryCount
	run.Error = errMsg

	w.logger.Info("proration run finished",
		"run_id", run.ID,
		"month", monthKey,
		"status", status,
		"entities", entityCount,
		"entries", entryCount,
	)

	return run, nil
}

func (w *ProrationWorker) processEntity(ctx context.Context, entityID int64, monthKey, runID string) (int64, error) {
	cfg, err := w.repos.BillingConfig.GetByEntityID(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to load billing configuration: %w", err)
	}
	if cfg == nil {
		// Entries logged for entities that never had a configuration stay
		// unprocessed; there is nothing to invoice against.
		w.logger.Debug("no billing configuration, leaving entries unprocessed", "entity_id", entityID)
		return 0, nil
	}
	if cfg.BillingModel != models.BillingModelSeats || cfg.BillingPeriod == models.BillingPeriodMonthly {
		// Monthly seat configurations settle through the high-water mark at
		// renewal; their entries are consumed here only as bookkeeping.
		claimed, err := w.seatChangeSvc.MarkAsProcessed(ctx, entityID, monthKey, runID)
		if err != nil {
			return 0, err
		}
		return claimed, nil
	}

	summary, err := w.seatChangeSvc.GetMonthlyChanges(ctx, entityID, monthKey)
	if err != nil {
		return 0, err
	}

	if summary.NetChange > 0 {
		if err := w.invoicer.InvoiceNetChange(ctx, summary, cfg); err != nil {
			return 0, fmt.Errorf("invoicer rejected net change: %w", err)
		}
	}

	claimed, err := w.seatChangeSvc.MarkAsProcessed(ctx, entityID, monthKey, runID)
	if err != nil {
		return 0, err
	}
	return claimed, nil
}
