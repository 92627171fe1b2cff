package keywraps

import (
	"context"

	"github.com/envault/envault/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, wrap *models.KeyWrap) error
	Get(ctx context.Context, projectID, memberID string) (*models.KeyWrap, error)
	Delete(ctx context.Context, projectID, memberID string) error
	ListByProject(ctx context.Context, projectID string) ([]*models.KeyWrap, error)
	DeleteByProject(ctx context.Context, projectID string) error
	DeleteByMember(ctx context.Context, memberID string) error
}
