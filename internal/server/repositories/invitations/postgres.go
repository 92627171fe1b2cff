package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Insert(ctx context.Context, inv *models.Invitation) error {

	query :=
		`INSERT INTO invitations (id, project_id, author_id, temp_public_key, temp_private_key_encrypted, wrapped_content_key)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	_, err := r.db.ExecContext(ctx, query,
		inv.ID, inv.ProjectID, inv.AuthorID,
		inv.TemporaryPublicKey, inv.TemporaryPrivateKeyEncrypted, inv.WrappedContentKey)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Invitation, error) {
	query :=
		`SELECT id, project_id, author_id, temp_public_key, temp_private_key_encrypted, wrapped_content_key, created_at
		 FROM invitations
		 WHERE id = $1
		 `

	inv := &models.Invitation{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID, &inv.ProjectID, &inv.AuthorID,
		&inv.TemporaryPublicKey, &inv.TemporaryPrivateKeyEncrypted, &inv.WrappedContentKey, &inv.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return inv, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (int64, error) {
	query :=
		`DELETE FROM invitations
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return affected, nil
}

func (r *PostgresRepository) ListExpiredIDs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	query :=
		`SELECT id FROM invitations
		 WHERE created_at < $1
		 ORDER BY created_at
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return ids, nil
}
