package keywraps

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/dbx"
	"github.com/envault/envault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert adds a wrap for one (project, member) pair. A duplicate insert
// yields common.ErrorConflict: wraps are never updated in place.
func (r *PostgresRepository) Insert(ctx context.Context, wrap *models.KeyWrap) error {

	query :=
		`INSERT INTO project_key_wraps (project_id, member_id, wrapped_content_key)
		 VALUES ($1, $2, $3)
		 `

	_, err := r.db.ExecContext(ctx, query, wrap.ProjectID, wrap.MemberID, wrap.WrappedContentKey)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, projectID, memberID string) (*models.KeyWrap, error) {
	query :=
		`SELECT project_id, member_id, wrapped_content_key, created_at FROM project_key_wraps
		 WHERE project_id = $1 AND member_id = $2
		 `

	wrap := &models.KeyWrap{}
	err := r.db.QueryRowContext(ctx, query, projectID, memberID).Scan(
		&wrap.ProjectID, &wrap.MemberID, &wrap.WrappedContentKey, &wrap.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return wrap, nil
}

// Delete removes a member's wrap. Deleting an absent wrap is a no-op.
func (r *PostgresRepository) Delete(ctx context.Context, projectID, memberID string) error {
	query :=
		`DELETE FROM project_key_wraps
		 WHERE project_id = $1 AND member_id = $2
		 `

	if _, err := r.db.ExecContext(ctx, query, projectID, memberID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListByProject(ctx context.Context, projectID string) ([]*models.KeyWrap, error) {
	query :=
		`SELECT project_id, member_id, wrapped_content_key, created_at FROM project_key_wraps
		 WHERE project_id = $1
		 ORDER BY member_id
		 `

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var wraps []*models.KeyWrap
	for rows.Next() {
		wrap := &models.KeyWrap{}
		if err := rows.Scan(&wrap.ProjectID, &wrap.MemberID, &wrap.WrappedContentKey, &wrap.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		wraps = append(wraps, wrap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return wraps, nil
}

// DeleteByProject clears every wrap of a project. Used by rotation before
// inserting the replacement wraps under the new content key.
func (r *PostgresRepository) DeleteByProject(ctx context.Context, projectID string) error {
	query :=
		`DELETE FROM project_key_wraps
		 WHERE project_id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, projectID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// DeleteByMember clears the member's wraps across all projects. Used by
// key-pair regeneration, which invalidates every wrap made for the old
// public key.
func (r *PostgresRepository) DeleteByMember(ctx context.Context, memberID string) error {
	query :=
		`DELETE FROM project_key_wraps
		 WHERE member_id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, memberID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
