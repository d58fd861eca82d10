package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/seatsync/seatsync-api/internal/database/migrations"
	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/repository"
	"github.com/seatsync/seatsync-api/internal/service"
)

type recordingInvoicer struct {
	invoiced []*models.MonthlyChangeSummary
	err      error
}

func (i *recordingInvoicer) InvoiceNetChange(ctx context.Context, summary *models.MonthlyChangeSummary, cfg *models.BillingConfiguration) error {
	if i.err != nil {
		return i.err
	}
	i.invoiced = append(i.invoiced, summary)
	return nil
}

type workerEnv struct {
	db       *sql.DB
	repos    *repository.Repositories
	seats    *service.SeatChangeService
	flags    *service.FeatureFlagService
	invoicer *recordingInvoicer
	worker   *ProrationWorker
}

func setupWorker(t *testing.T) *workerEnv {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repos := repository.NewRepositories(db)
	flags := service.NewFeatureFlagService(repos.FeatureFlag, map[string]bool{
		models.FlagMonthlyProration: true,
	}, logger)
	hwm := service.NewHighWaterMarkService(repos, flags, nil, logger)
	seats := service.NewSeatChangeService(repos, hwm, logger)
	invoicer := &recordingInvoicer{}

	return &workerEnv{
		db:       db,
		repos:    repos,
		seats:    seats,
		flags:    flags,
		invoicer: invoicer,
		worker:   NewProrationWorker(repos, seats, flags, invoicer, "0 3 1 * *", logger),
	}
}

func (e *workerEnv) seedConfig(t *testing.T, entityID int64, period models.BillingPeriod) {
	t.Helper()
	cfg := &models.BillingConfiguration{
		EntityID:        entityID,
		BillingModel:    models.BillingModelSeats,
		BillingPeriod:   period,
		PricePerSeatUSD: 10,
	}
	if err := e.repos.BillingConfig.Upsert(context.Background(), cfg); err != nil {
		t.Fatalf("failed to seed config: %v", err)
	}
}

func (e *workerEnv) seedChange(t *testing.T, entityID int64, changeType models.SeatChangeType, monthKey string) {
	t.Helper()
	entry := &models.SeatChangeLogEntry{
		ID:         ulid.Make().String(),
		EntityID:   entityID,
		ChangeType: changeType,
		SeatCount:  1,
		MonthKey:   monthKey,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.repos.SeatChange.Create(context.Background(), entry); err != nil {
		t.Fatalf("failed to seed change: %v", err)
	}
}

func TestProrationWorker_RunForMonth(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()

	env.seedConfig(t, 1, models.BillingPeriodAnnually)
	env.seedChange(t, 1, models.SeatChangeAddition, "2026-01")
	env.seedChange(t, 1, models.SeatChangeAddition, "2026-01")
	env.seedChange(t, 1, models.SeatChangeRemoval, "2026-01")

	run, err := env.worker.RunForMonth(ctx, "2026-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run == nil {
		t.Fatal("expected a run record")
	}
	if run.Status != models.ProrationRunCompleted {
		t.Errorf("status = %v, want completed", run.Status)
	}
	if run.EntityCount != 1 || run.EntryCount != 3 {
		t.Errorf("counts = %d/%d, want 1/3", run.EntityCount, run.EntryCount)
	}

	// The invoicer saw the clamped net change
	if len(env.invoicer.invoiced) != 1 {
		t.Fatalf("invoiced = %d entities, want 1", len(env.invoicer.invoiced))
	}
	if env.invoicer.invoiced[0].NetChange != 1 {
		t.Errorf("net change = %d, want 1", env.invoicer.invoiced[0].NetChange)
	}

	// Entries carry the run id
	entries, err := env.repos.SeatChange.ListByEntityAndMonth(ctx, 1, "2026-01")
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if !e.Processed || e.ProrationID == nil || *e.ProrationID != run.ID {
			t.Errorf("entry %s not stamped with run %s", e.ID, run.ID)
		}
	}

	// A second run finds nothing
	second, err := env.worker.RunForMonth(ctx, "2026-01")
	if err != nil {
		t.Fatal(err)
	}
	if second.EntityCount != 0 || second.EntryCount != 0 {
		t.Errorf("second run counts = %d/%d, want 0/0", second.EntityCount, second.EntryCount)
	}
	if len(env.invoicer.invoiced) != 1 {
		t.Errorf("invoiced = %d after second run, want still 1", len(env.invoicer.invoiced))
	}
}

func TestProrationWorker_NetRemovalNotInvoiced(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()

	env.seedConfig(t, 1, models.BillingPeriodAnnually)
	env.seedChange(t, 1, models.SeatChangeRemoval, "2026-01")
	env.seedChange(t, 1, models.SeatChangeRemoval, "2026-01")

	run, err := env.worker.RunForMonth(ctx, "2026-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.invoicer.invoiced) != 0 {
		t.Error("net removals must not produce an invoice")
	}
	// Entries are still consumed so they cannot be re-billed later
	if run.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", run.EntryCount)
	}
}

func TestProrationWorker_FlagDisabled(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()

	if err := env.flags.SetFlag(ctx, models.FlagMonthlyProration, false); err != nil {
		t.Fatal(err)
	}
	env.seedConfig(t, 1, models.BillingPeriodAnnually)
	env.seedChange(t, 1, models.SeatChangeAddition, "2026-01")

	run, err := env.worker.RunForMonth(ctx, "2026-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run != nil {
		t.Error("disabled flag should skip the run entirely")
	}

	unprocessed, err := env.repos.SeatChange.GetUnprocessed(ctx, 1, "2026-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(unprocessed) != 1 {
		t.Errorf("unprocessed = %d, want untouched 1", len(unprocessed))
	}
}

func TestProrationWorker_InvoicerFailureLeavesEntries(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()

	env.seedConfig(t, 1, models.BillingPeriodAnnually)
	env.seedChange(t, 1, models.SeatChangeAddition, "2026-01")
	env.invoicer.err = errors.New("invoice rejected")

	run, err := env.worker.RunForMonth(ctx, "2026-01")
	if err != nil {
		t.Fatalf("batch error is recorded, not returned: %v", err)
	}
	if run.Status != models.ProrationRunFailed {
		t.Errorf("status = %v, want failed", run.Status)
	}

	// Nothing was stamped: the entries stay claimable for the next run
	unprocessed, err := env.repos.SeatChange.GetUnprocessed(ctx, 1, "2026-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(unprocessed) != 1 {
		t.Errorf("unprocessed = %d, want 1", len(unprocessed))
	}
}

func TestProrationWorker_MonthlyConfigConsumedWithoutInvoice(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()

	// Monthly seat configs settle at renewal via the high-water mark; the
	// batch only consumes their entries as bookkeeping.
	env.seedConfig(t, 1, models.BillingPeriodMonthly)
	env.seedChange(t, 1, models.SeatChangeAddition, "2026-01")

	run, err := env.worker.RunForMonth(ctx, "2026-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.invoicer.invoiced) != 0 {
		t.Error("monthly config must not be invoiced by the batch")
	}
	if run.EntryCount != 1 {
		t.Errorf("entry count = %d, want consumed 1", run.EntryCount)
	}
}
