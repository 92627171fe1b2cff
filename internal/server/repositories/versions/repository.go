package versions

import (
	"context"

	"github.com/envault/envault/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, v *models.SecretVersion) error
	Latest(ctx context.Context, projectID string) (*models.SecretVersion, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.SecretVersion, error)
	CountByProject(ctx context.Context, projectID string) (int64, error)

	// ListOldest returns up to limit versions ordered by creation time
	// ascending, for retention pruning.
	ListOldest(ctx context.Context, projectID string, limit int) ([]*models.SecretVersion, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}
