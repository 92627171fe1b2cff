package userkeys

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

// Create inserts a user's key record. A second insert for the same user
// yields common.ErrorAlreadyConfigured.
func (r *PostgresRepository) Create(ctx context.Context, key *models.UserKey) error {

	query :=
		`INSERT INTO user_keys (user_id, public_key, encrypted_private_key)
		 VALUES ($1, $2, $3)
		 `

	_, err := r.db.ExecContext(ctx, query, key.UserID, key.PublicKey, key.EncryptedPrivateKey)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrorAlreadyConfigured
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.UserKey, error) {
	query :=
		`SELECT user_id, public_key, encrypted_private_key, created_at, updated_at FROM user_keys
		 WHERE user_id = $1
		 `

	key := &models.UserKey{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&key.UserID, &key.PublicKey, &key.EncryptedPrivateKey, &key.CreatedAt, &key.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return key, nil
}

// Replace overwrites both halves of an existing record. Used only by full
// key-pair regeneration.
func (r *PostgresRepository) Replace(ctx context.Context, key *models.UserKey) error {
	query :=
		`UPDATE user_keys SET public_key = $2, encrypted_private_key = $3, updated_at = now()
		 WHERE user_id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, key.UserID, key.PublicKey, key.EncryptedPrivateKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}

	return nil
}
