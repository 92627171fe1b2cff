package userkeys

import (
	"context"

	"github.com/envault/envault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, key *models.UserKey) error
	Get(ctx context.Context, userID string) (*models.UserKey, error)
	Replace(ctx context.Context, key *models.UserKey) error
}
