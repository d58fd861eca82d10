package repository

import (
	"database/sql"
	"testing"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/seatsync/seatsync-api/internal/database/migrations"
	"github.com/seatsync/seatsync-api/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
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

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// insertTestTeam is a helper to insert a team row directly.
func insertTestTeam(t *testing.T, db *sql.DB, id int64, name string, parentOrgID *int64) {
	t.Helper()
	query := `INSERT INTO teams (id, name, parent_org_id, created_at) VALUES (?, ?, ?, datetime('now'))`
	if _, err := db.Exec(query, id, name, parentOrgID); err != nil {
		t.Fatalf("failed to insert test team: %v", err)
	}
}

// insertTestMembership is a helper to insert a membership row directly.
func insertTestMembership(t *testing.T, db *sql.DB, entityID, userID int64) {
	t.Helper()
	query := `INSERT INTO memberships (entity_id, user_id, created_at) VALUES (?, ?, datetime('now'))`
	if _, err := db.Exec(query, entityID, userID); err != nil {
		t.Fatalf("failed to insert test membership: %v", err)
	}
}

// testSeatsConfig builds a minimal monthly SEATS configuration.
func testSeatsConfig(entityID int64, subscriptionID string) *models.BillingConfiguration {
	return &models.BillingConfiguration{
		EntityID:           entityID,
		BillingModel:       models.BillingModelSeats,
		BillingPeriod:      models.BillingPeriodMonthly,
		SubscriptionID:     subscriptionID,
		SubscriptionItemID: "si_" + subscriptionID,
		CustomerID:         "cus_" + subscriptionID,
		PricePerSeatUSD:    12,
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}

func strPtr(s string) *string {
	return &s
}
