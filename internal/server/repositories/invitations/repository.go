package invitations

import (
	"context"
	"time"

	"github.com/envault/envault/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, inv *models.Invitation) error
	Get(ctx context.Context, id string) (*models.Invitation, error)

	// Delete returns the number of rows removed so callers can detect a
	// concurrently consumed invitation (0 rows).
	Delete(ctx context.Context, id string) (int64, error)

	// ListExpiredIDs returns up to limit ids of invitations created before
	// the given instant, oldest first. Repeated calls after deletion yield
	// the next page, so the sweep is a restartable, finite iteration.
	ListExpiredIDs(ctx context.Context, before time.Time, limit int) ([]string, error)
}
