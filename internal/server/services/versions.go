package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/envault/envault/internal/cryptox"
	"github.com/envault/envault/internal/logging"
	"github.com/envault/envault/internal/server/models"
	"github.com/envault/envault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// VersionService keeps the append-only history of a project's secret
// content. Versions are immutable; writing always appends, never updates.
// History in the hot store is bounded by retentionLimit, oldest versions
// spilling to the archiver when the bound is exceeded.
type VersionService struct {
	db             *sql.DB
	repomanager    repomanager.RepositoryManager
	retentionLimit int64
	archiver       Archiver
	logger         logging.Logger
}

// NewVersionService constructs the store. A nil archiver disables
// archiving; pruned versions are then dropped.
func NewVersionService(db *sql.DB, m repomanager.RepositoryManager, retentionLimit int64, archiver Archiver, logger logging.Logger) *VersionService {
	return &VersionService{db: db, repomanager: m, retentionLimit: retentionLimit, archiver: archiver, logger: logger}
}

// Append encrypts the content under the project content key and stores it
// as the new current version. Pruning runs afterwards on a best-effort
// basis: a prune failure is logged, not returned, because the version
// itself is already durably written.
func (s *VersionService) Append(ctx context.Context, projectID, authorID string, content, contentKey []byte) (*models.SecretVersion, error) {
	encrypted, err := cryptox.SymmetricEncrypt(content, contentKey)
	if err != nil {
		return nil, fmt.Errorf("error encrypting content: %w", err)
	}

	v := &models.SecretVersion{
		ID:               uuid.New().String(),
		ProjectID:        projectID,
		AuthorID:         authorID,
		EncryptedContent: encrypted,
	}

	if err := s.repomanager.Versions(s.db).Insert(ctx, v); err != nil {
		return nil, err
	}

	if err := s.prune(ctx, projectID); err != nil {
		s.logger.Error(ctx, "version prune failed", "project_id", projectID, "error", err)
	}

	return v, nil
}

// Latest returns the newest version of the project, still encrypted.
func (s *VersionService) Latest(ctx context.Context, projectID string) (*models.SecretVersion, error) {
	return s.repomanager.Versions(s.db).Latest(ctx, projectID)
}

// History returns all retained versions, newest first, still encrypted.
func (s *VersionService) History(ctx context.Context, projectID string) ([]*models.SecretVersion, error) {
	return s.repomanager.Versions(s.db).ListByProject(ctx, projectID)
}

// prune trims the project's history back to retentionLimit. Each excess
// version is archived before deletion; if any archive call fails, nothing
// is deleted and the next Append retries the whole batch.
func (s *VersionService) prune(ctx context.Context, projectID string) error {
	repo := s.repomanager.Versions(s.db)

	count, err := repo.CountByProject(ctx, projectID)
	if err != nil {
		return err
	}

	excess := count - s.retentionLimit
	if excess <= 0 {
		return nil
	}

	oldest, err := repo.ListOldest(ctx, projectID, int(excess))
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(oldest))
	for _, v := range oldest {
		if s.archiver != nil {
			if err := s.archiver.Archive(ctx, v); err != nil {
				return err
			}
		}
		ids = append(ids, v.ID)
	}

	return repo.DeleteByIDs(ctx, ids)
}
