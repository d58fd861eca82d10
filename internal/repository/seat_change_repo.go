package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/seatsync/seatsync-api/internal/models"
)

// SQLiteSeatChangeRepository implements SeatChangeRepository for SQLite.
type SQLiteSeatChangeRepository struct {
	db *sql.DB
}

// NewSQLiteSeatChangeRepository creates a new SQLite seat change repository.
func NewSQLiteSeatChangeRepository(db *sql.DB) *SQLiteSeatChangeRepository {
	return &SQLiteSeatChangeRepository{db: db}
}

const seatChangeColumns = `id, entity_id, change_type, seat_count, actor_user_id, subject_user_id,
	month_key, operation_id, processed, proration_id, created_at`

func (r *SQLiteSeatChangeRepository) Create(ctx context.Context, entry *models.SeatChangeLogEntry) error {
	query := `INSERT INTO seat_change_log (` + seatChangeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.EntityID, entry.ChangeType, entry.SeatCount,
		entry.ActorUserID, entry.SubjectUserID, entry.MonthKey, entry.OperationID,
		boolToInt(entry.Processed), entry.ProrationID, entry.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteSeatChangeRepository) GetByOperationID(ctx context.Context, entityID int64, operationID string) (*models.SeatChangeLogEntry, error) {
	query := `SELECT ` + seatChangeColumns + ` FROM seat_change_log WHERE entity_id = ? AND operation_id = ?`

	entry, err := scanSeatChange(r.db.QueryRowContext(ctx, query, entityID, operationID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *SQLiteSeatChangeRepository) GetMonthlySummary(ctx context.Context, entityID int64, monthKey string) (*models.MonthlyChangeSummary, error) {
	query := `SELECT
			COALESCE(SUM(CASE WHEN change_type = ? THEN seat_count ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN change_type = ? THEN seat_count ELSE 0 END), 0)
		FROM seat_change_log WHERE entity_id = ? AND month_key = ?`

	summary := &models.MonthlyChangeSummary{EntityID: entityID, MonthKey: monthKey}
	err := r.db.QueryRowContext(ctx, query, models.SeatChangeAddition, models.SeatChangeRemoval, entityID, monthKey).
		Scan(&summary.Additions, &summary.Removals)
	if err != nil {
		return nil, err
	}

	// Net change never goes negative: a month with more removals than
	// additions yields no credit.
	if net := summary.Additions - summary.Removals; net > 0 {
		summary.NetChange = net
	}

	return summary, nil
}

func (r *SQLiteSeatChangeRepository) ListByEntityAndMonth(ctx context.Context, entityID int64, monthKey string) ([]*models.SeatChangeLogEntry, error) {
	query := `SELECT ` + seatChangeColumns + ` FROM seat_change_log
		WHERE entity_id = ? AND month_key = ? ORDER BY id`
	return r.queryEntries(ctx, query, entityID, monthKey)
}

func (r *SQLiteSeatChangeRepository) GetUnprocessed(ctx context.Context, entityID int64, monthKey string) ([]*models.SeatChangeLogEntry, error) {
	query := `SELECT ` + seatChangeColumns + ` FROM seat_change_log
		WHERE entity_id = ? AND month_key = ? AND processed = 0 ORDER BY id`
	return r.queryEntries(ctx, query, entityID, monthKey)
}

func (r *SQLiteSeatChangeRepository) ListUnprocessedEntities(ctx context.Context, monthKey string) ([]int64, error) {
	query := `SELECT DISTINCT entity_id FROM seat_change_log
		WHERE month_key = ? AND processed = 0 ORDER BY entity_id`

	rows, err := r.db.QueryContext(ctx, query, monthKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entities []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		entities = append(entities, id)
	}

	return entities, rows.Err()
}

func (r *SQLiteSeatChangeRepository) MarkProcessed(ctx context.Context, entityID int64, monthKey string, prorationID string) (int64, error) {
	// The processed = 0 guard makes this safe against overlapping batch
	// runs: only one run can claim a given entry.
	query := `UPDATE seat_change_log SET processed = 1, proration_id = ?
		WHERE entity_id = ? AND month_key = ? AND processed = 0`

	result, err := r.db.ExecContext(ctx, query, prorationID, entityID, monthKey)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SQLiteSeatChangeRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*models.SeatChangeLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*models.SeatChangeLogEntry
	for rows.Next() {
		entry, err := scanSeatChange(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeatChange(row rowScanner) (*models.SeatChangeLogEntry, error) {
	var entry models.SeatChangeLogEntry
	var actorUserID, subjectUserID sql.NullInt64
	var operationID, prorationID sql.NullString
	var processed int
	var createdAt string

	err := row.Scan(&entry.ID, &entry.EntityID, &entry.ChangeType, &entry.SeatCount,
		&actorUserID, &subjectUserID, &entry.MonthKey, &operationID,
		&processed, &prorationID, &createdAt)
	if err != nil {
		return nil, err
	}

	if actorUserID.Valid {
		entry.ActorUserID = &actorUserID.Int64
	}
	if subjectUserID.Valid {
		entry.SubjectUserID = &subjectUserID.Int64
	}
	if operationID.Valid {
		entry.OperationID = &operationID.String
	}
	if prorationID.Valid {
		entry.ProrationID = &prorationID.String
	}
	entry.Processed = processed != 0
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
