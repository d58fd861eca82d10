package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/seatsync/seatsync-api/internal/models"
)

// SQLiteFeatureFlagRepository implements FeatureFlagRepository for SQLite.
type SQLiteFeatureFlagRepository struct {
	db *sql.DB
}

// NewSQLiteFeatureFlagRepository creates a new SQLite feature flag repository.
func NewSQLiteFeatureFlagRepository(db *sql.DB) *SQLiteFeatureFlagRepository {
	return &SQLiteFeatureFlagRepository{db: db}
}

func (r *SQLiteFeatureFlagRepository) Get(ctx context.Context, name string) (*models.FeatureFlag, error) {
	var flag models.FeatureFlag
	var enabled int
	var updatedAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT name, enabled, updated_at FROM feature_flags WHERE name = ?`, name).
		Scan(&flag.Name, &enabled, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	flag.Enabled = enabled != 0
	flag.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &flag, nil
}

func (r *SQLiteFeatureFlagRepository) Set(ctx context.Context, name string, enabled bool) error {
	query := `INSERT INTO feature_flags (name, enabled, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, name, boolToInt(enabled), time.Now().UTC().Format(time.RFC3339))
	return err
}
