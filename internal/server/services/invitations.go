package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/cryptox"
	"github.com/envault/envault/internal/dbx"
	"github.com/envault/envault/internal/logging"
	"github.com/envault/envault/internal/server/models"
	"github.com/envault/envault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// sweepPageSize bounds one page of the expiry sweep.
const sweepPageSize = 100

// InvitationService relays project access to people who do not yet hold a
// stable key pair. Each invitation carries a single-use temporary key pair:
// the project content key wrapped for the temporary public key, and the
// temporary private key encrypted under a one-time passphrase shared
// out-of-band. The passphrase itself is never stored.
type InvitationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ttl         time.Duration
	logger      logging.Logger
}

func NewInvitationService(db *sql.DB, m repomanager.RepositoryManager, ttl time.Duration, logger logging.Logger) *InvitationService {
	return &InvitationService{db: db, repomanager: m, ttl: ttl, logger: logger}
}

// AcceptResult reports a consumed invitation. The caller decides what
// follows (notification, audit record); nothing is emitted from here.
type AcceptResult struct {
	ProjectID string
	MemberID  string
}

// Create builds an invitation for the project: a temporary key pair, the
// content key wrapped for its public half, the private half encrypted under
// the one-time passphrase. The author communicates the passphrase to the
// invitee out-of-band.
func (s *InvitationService) Create(ctx context.Context, projectID, authorID, onetimePassphrase string, contentKey []byte) (*models.Invitation, error) {
	tempPublic, tempPrivate, err := cryptox.GenerateKeyPair()
	if err != nil {
		return nil, common.ErrorInternal
	}
	defer common.WipeByteArray(tempPrivate)

	wrapped, err := cryptox.AsymmetricEncrypt(contentKey, tempPublic)
	if err != nil {
		return nil, fmt.Errorf("error wrapping content key: %w", err)
	}

	derived := cryptox.DeriveKeyFromPassphrase(onetimePassphrase)
	defer common.WipeByteArray(derived[:])

	encryptedPrivate, err := cryptox.SymmetricEncrypt(tempPrivate, derived[:])
	if err != nil {
		return nil, common.ErrorInternal
	}

	inv := &models.Invitation{
		ID:                           uuid.New().String(),
		ProjectID:                    projectID,
		AuthorID:                     authorID,
		TemporaryPublicKey:           tempPublic,
		TemporaryPrivateKeyEncrypted: encryptedPrivate,
		WrappedContentKey:            wrapped,
		CreatedAt:                    time.Now().UTC(),
	}

	if err := s.repomanager.Invitations(s.db).Insert(ctx, inv); err != nil {
		return nil, err
	}

	return inv, nil
}

// Accept consumes an invitation: it recovers the content key through the
// temporary key pair and re-wraps it for the invitee. The invitation delete
// and the wrap insert happen in one transaction, so a second Accept on the
// same id always observes common.ErrorNotFound and no partial state is ever
// committed.
//
// A wrong passphrase surfaces as common.ErrorDecryptionFailed, identical to
// a corrupted record.
func (s *InvitationService) Accept(ctx context.Context, invitationID, onetimePassphrase string, inviteePublicKey []byte, inviteeID string) (*AcceptResult, error) {
	inv, err := s.repomanager.Invitations(s.db).Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}

	// Expired invitations the sweep has not reached yet behave as deleted.
	if time.Now().After(inv.ExpiresAt(s.ttl)) {
		return nil, common.ErrorNotFound
	}

	derived := cryptox.DeriveKeyFromPassphrase(onetimePassphrase)
	defer common.WipeByteArray(derived[:])

	tempPrivate, err := cryptox.SymmetricDecrypt(inv.TemporaryPrivateKeyEncrypted, derived[:])
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(tempPrivate)

	contentKey, err := cryptox.AsymmetricDecrypt(inv.WrappedContentKey, tempPrivate)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(contentKey)

	wrapped, err := cryptox.AsymmetricEncrypt(contentKey, inviteePublicKey)
	if err != nil {
		return nil, fmt.Errorf("error wrapping content key: %w", err)
	}

	wrap := &models.KeyWrap{ProjectID: inv.ProjectID, MemberID: inviteeID, WrappedContentKey: wrapped}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		affected, err := s.repomanager.Invitations(tx).Delete(ctx, invitationID)
		if err != nil {
			return err
		}
		if affected == 0 {
			// Someone consumed or revoked it between our read and this delete.
			return common.ErrorNotFound
		}
		return s.repomanager.KeyWraps(tx).Insert(ctx, wrap)
	}); err != nil {
		return nil, err
	}

	return &AcceptResult{ProjectID: inv.ProjectID, MemberID: inviteeID}, nil
}

// Author returns the id of the member who created the invitation.
func (s *InvitationService) Author(ctx context.Context, invitationID string) (string, error) {
	inv, err := s.repomanager.Invitations(s.db).Get(ctx, invitationID)
	if err != nil {
		return "", err
	}
	return inv.AuthorID, nil
}

// Revoke deletes the invitation unconditionally. Revoking an already
// consumed or swept invitation is a no-op.
func (s *InvitationService) Revoke(ctx context.Context, invitationID string) error {
	_, err := s.repomanager.Invitations(s.db).Delete(ctx, invitationID)
	return err
}

// SweepExpired deletes invitations older than the TTL, one bounded page at
// a time, and returns how many were removed. Pages restart from the top
// after each pass, so an interrupted sweep resumes cleanly next tick.
func (s *InvitationService) SweepExpired(ctx context.Context) (int, error) {
	repo := s.repomanager.Invitations(s.db)
	before := time.Now().Add(-s.ttl)

	total := 0
	for {
		ids, err := repo.ListExpiredIDs(ctx, before, sweepPageSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		for _, id := range ids {
			affected, err := repo.Delete(ctx, id)
			if err != nil {
				return total, err
			}
			total += int(affected)
		}

		if len(ids) < sweepPageSize {
			return total, nil
		}
	}
}

// RunSweeper invokes SweepExpired on the given interval until the context
// is canceled. Intended to run in its own goroutine.
func (s *InvitationService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.SweepExpired(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error(ctx, "invitation sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info(ctx, "expired invitations removed", "count", removed)
			}
		}
	}
}
