package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/seatsync/seatsync-api/internal/models"
)

// SQLiteProrationRunRepository implements ProrationRunRepository for SQLite.
type SQLiteProrationRunRepository struct {
	db *sql.DB
}

// NewSQLiteProrationRunRepository creates a new SQLite proration run repository.
func NewSQLiteProrationRunRepository(db *sql.DB) *SQLiteProrationRunRepository {
	return &SQLiteProrationRunRepository{db: db}
}

func (r *SQLiteProrationRunRepository) Create(ctx context.Context, run *models.ProrationRun) error {
	query := `INSERT INTO proration_runs (id, month_key, status, entity_count, entry_count, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, run.ID, run.MonthKey, run.Status,
		run.EntityCount, run.EntryCount, run.Error, run.StartedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteProrationRunRepository) Complete(ctx context.Context, id string, status models.ProrationRunStatus, entityCount, entryCount int, errMsg string) error {
	query := `UPDATE proration_runs SET status = ?, entity_count = ?, entry_count = ?, error = ?, completed_at = ?
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, status, entityCount, entryCount, errMsg,
		time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteProrationRunRepository) GetByID(ctx context.Context, id string) (*models.ProrationRun, error) {
	query := `SELECT id, month_key, status, entity_count, entry_count, error, started_at, completed_at
		FROM proration_runs WHERE id = ?`

	run, err := scanProrationRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *SQLiteProrationRunRepository) ListByMonth(ctx context.Context, monthKey string) ([]*models.ProrationRun, error) {
	query := `SELECT id, month_key, status, entity_count, entry_count, error, started_at, completed_at
		FROM proration_runs WHERE month_key = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, monthKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.ProrationRun
	for rows.Next() {
		run, err := scanProrationRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanProrationRun(row rowScanner) (*models.ProrationRun, error) {
	var run models.ProrationRun
	var errMsg, completedAt sql.NullString
	var startedAt string

	err := row.Scan(&run.ID, &run.MonthKey, &run.Status, &run.EntityCount,
		&run.EntryCount, &errMsg, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	run.Error = errMsg.String
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	run.CompletedAt = parseTimePtr(completedAt)

	return &run, nil
}
