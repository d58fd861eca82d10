package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/seatsync/seatsync-api/internal/database/migrations"
	"github.com/seatsync/seatsync-api/internal/models"
	"github.com/seatsync/seatsync-api/internal/provider"
	"github.com/seatsync/seatsync-api/internal/repository"
)

// mockGateway is a hand-rolled SubscriptionGateway that records calls and
// injects failures.
type mockGateway struct {
	sub       *provider.Subscription
	getErr    error
	updateErr error

	getCalls int
	updates  []provider.UpdateQuantityParams
}

func (g *mockGateway) GetSubscription(ctx context.Context, subscriptionID string) (*provider.Subscription, error) {
	g.getCalls++
	if g.getErr != nil {
		return nil, g.getErr
	}
	if g.sub != nil {
		return g.sub, nil
	}
	return &provider.Subscription{ID: subscriptionID, Status: "active"}, nil
}

func (g *mockGateway) UpdateSubscriptionQuantity(ctx context.Context, p provider.UpdateQuantityParams) error {
	if g.updateErr != nil {
		return g.updateErr
	}
	g.updates = append(g.updates, p)
	return nil
}

// lastQuantity returns the quantity of the most recent provider update.
func (g *mockGateway) lastQuantity(t *testing.T) int64 {
	t.Helper()
	if len(g.updates) == 0 {
		t.Fatal("no provider updates recorded")
	}
	return g.updates[len(g.updates)-1].Quantity
}

// testEnv wires real SQLite-backed repositories to the services under test,
// with a mock provider gateway.
type testEnv struct {
	db       *sql.DB
	repos    *repository.Repositories
	gateway  *mockGateway
	flags    *FeatureFlagService
	hwm      *HighWaterMarkService
	seats    *SeatChangeService
	resolver *StrategyResolver
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repos := repository.NewRepositories(db)
	gateway := &mockGateway{}

	flags := NewFeatureFlagService(repos.FeatureFlag, map[string]bool{
		models.FlagHWMSeatBilling:   true,
		models.FlagMonthlyProration: true,
	}, logger)
	hwm := NewHighWaterMarkService(repos, flags, gateway, logger)
	seats := NewSeatChangeService(repos, hwm, logger)
	resolver := NewStrategyResolver(repos, seats, hwm, gateway, logger)

	return &testEnv{
		db:       db,
		repos:    repos,
		gateway:  gateway,
		flags:    flags,
		hwm:      hwm,
		seats:    seats,
		resolver: resolver,
	}
}

// createTeam registers a team with n members.
func (e *testEnv) createTeam(t *testing.T, id int64, parentOrgID *int64, memberUserIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	if err := e.repos.Membership.CreateTeam(ctx, &models.Team{ID: id, Name: "team", ParentOrgID: parentOrgID}); err != nil {
		t.Fatalf("failed to create team: %v", err)
	}
	for _, userID := range memberUserIDs {
		if _, err := e.repos.Membership.AddMember(ctx, id, userID); err != nil {
			t.Fatalf("failed to add member: %v", err)
		}
	}
}

// createConfig stores a billing configuration for the entity.
func (e *testEnv) createConfig(t *testing.T, entityID int64, model models.BillingModel, period models.BillingPeriod, subscriptionID string) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := &models.BillingConfiguration{
		EntityID:           entityID,
		BillingModel:       model,
		BillingPeriod:      period,
		SubscriptionID:     subscriptionID,
		SubscriptionItemID: "si_" + subscriptionID,
		CustomerID:         "cus_1",
		PricePerSeatUSD:    10,
		SubscriptionStart:  &start,
	}
	if err := e.repos.BillingConfig.Upsert(context.Background(), cfg); err != nil {
		t.Fatalf("failed to create config: %v", err)
	}
}

func (e *testEnv) config(t *testing.T, entityID int64) *models.BillingConfiguration {
	t.Helper()
	cfg, err := e.repos.BillingConfig.GetByEntityID(context.Background(), entityID)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg == nil {
		t.Fatalf("no config for entity %d", entityID)
	}
	return cfg
}

func timeNowUTC() time.Time {
	return time.Now().UTC()
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64Ptr(v int64) *int64 {
	return &v
}

func strPtr(s string) *string {
	return &s
}
