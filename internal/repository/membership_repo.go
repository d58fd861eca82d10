package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/seatsync/seatsync-api/internal/models"
)

// SQLiteMembershipRepository implements MembershipRepository for SQLite.
type SQLiteMembershipRepository struct {
	db *sql.DB
}

// NewSQLiteMembershipRepository creates a new SQLite membership repository.
func NewSQLiteMembershipRepository(db *sql.DB) *SQLiteMembershipRepository {
	return &SQLiteMembershipRepository{db: db}
}

func (r *SQLiteMembershipRepository) CountByEntity(ctx context.Context, entityID int64) (int64, bool, error) {
	// An entity is known if it is a team, or if any team rolls up to it as
	// a parent organization. Unknown entities report no count at all,
	// which callers must distinguish from a known entity with zero seats.
	var isTeam, isOrg bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM teams WHERE id = ?),
			EXISTS(SELECT 1 FROM teams WHERE parent_org_id = ?)`,
		entityID, entityID).Scan(&isTeam, &isOrg)
	if err != nil {
		return 0, false, err
	}

	if isTeam {
		var count int64
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memberships WHERE entity_id = ?`, entityID).Scan(&count)
		if err != nil {
			return 0, false, err
		}
		return count, true, nil
	}

	if isOrg {
		// Organization seats are the distinct users across its teams plus
		// any memberships recorded directly against the organization.
		var count int64
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(DISTINCT m.user_id) FROM memberships m
				LEFT JOIN teams t ON m.entity_id = t.id
				WHERE t.parent_org_id = ? OR m.entity_id = ?`,
			entityID, entityID).Scan(&count)
		if err != nil {
			return 0, false, err
		}
		return count, true, nil
	}

	return 0, false, nil
}

func (r *SQLiteMembershipRepository) AddMember(ctx context.Context, entityID, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (entity_id, user_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT(entity_id, user_id) DO NOTHING`,
		entityID, userID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (r *SQLiteMembershipRepository) RemoveMember(ctx context.Context, entityID, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE entity_id = ? AND user_id = ?`, entityID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (r *SQLiteMembershipRepository) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	var team models.Team
	var parentOrgID sql.NullInt64
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, parent_org_id, created_at FROM teams WHERE id = ?`, id).
		Scan(&team.ID, &team.Name, &parentOrgID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if parentOrgID.Valid {
		team.ParentOrgID = &parentOrgID.Int64
	}
	team.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &team, nil
}

func (r *SQLiteMembershipRepository) CreateTeam(ctx context.Context, team *models.Team) error {
	now := time.Now().UTC()
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
	}

	if team.ID != 0 {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO teams (id, name, parent_org_id, created_at) VALUES (?, ?, ?, ?)`,
			team.ID, team.Name, team.ParentOrgID, team.CreatedAt.UTC().Format(time.RFC3339))
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO teams (name, parent_org_id, created_at) VALUES (?, ?, ?)`,
		team.Name, team.ParentOrgID, team.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	team.ID, err = result.LastInsertId()
	return err
}
