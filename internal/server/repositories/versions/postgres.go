package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/dbx"
	"github.com/envault/envault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, v *models.SecretVersion) error {

	query :=
		`INSERT INTO secret_versions (id, project_id, author_id, encrypted_content)
		 VALUES ($1, $2, $3, $4)
		 `

	_, err := r.db.ExecContext(ctx, query, v.ID, v.ProjectID, v.AuthorID, v.EncryptedContent)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Latest(ctx context.Context, projectID string) (*models.SecretVersion, error) {
	query :=
		`SELECT id, project_id, author_id, encrypted_content, created_at FROM secret_versions
		 WHERE project_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1
		 `

	v := &models.SecretVersion{}
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(
		&v.ID, &v.ProjectID, &v.AuthorID, &v.EncryptedContent, &v.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return v, nil
}

func (r *PostgresRepository) ListByProject(ctx context.Context, projectID string) ([]*models.SecretVersion, error) {
	query :=
		`SELECT id, project_id, author_id, encrypted_content, created_at FROM secret_versions
		 WHERE project_id = $1
		 ORDER BY created_at DESC
		 `

	return r.list(ctx, query, projectID)
}

func (r *PostgresRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	query :=
		`SELECT COUNT(*) FROM secret_versions
		 WHERE project_id = $1
		 `

	var count int64
	if err := r.db.QueryRowContext(ctx, query, projectID).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func (r *PostgresRepository) ListOldest(ctx context.Context, projectID string, limit int) ([]*models.SecretVersion, error) {
	query :=
		`SELECT id, project_id, author_id, encrypted_content, created_at FROM secret_versions
		 WHERE project_id = $1
		 ORDER BY created_at
		 LIMIT $2
		 `

	return r.list(ctx, query, projectID, limit)
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM secret_versions WHERE id IN (%s)`, strings.Join(placeholders, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.SecretVersion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SecretVersion
	for rows.Next() {
		v := &models.SecretVersion{}
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.AuthorID, &v.EncryptedContent, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
