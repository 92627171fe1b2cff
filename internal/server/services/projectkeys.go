package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/cryptox"
	"github.com/envault/envault/internal/dbx"
	"github.com/envault/envault/internal/server/models"
	"github.com/envault/envault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// KeyDistributorService maintains, for every current project member, the
// project content key wrapped under that member's public key. It never
// derives or stores the content key itself: callers that already unwrapped
// their own copy pass it in as a parameter.
type KeyDistributorService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewKeyDistributorService(db *sql.DB, m repomanager.RepositoryManager) *KeyDistributorService {
	return &KeyDistributorService{db: db, repomanager: m}
}

// CreateProject generates a fresh content key, wraps it for the owner (the
// first member) and stores the single wrap. The plaintext content key is
// returned to the owner's session and nowhere else.
func (s *KeyDistributorService) CreateProject(ctx context.Context, ownerID string) (string, []byte, error) {
	ownerKey, err := s.repomanager.UserKeys(s.db).Get(ctx, ownerID)
	if err != nil {
		return "", nil, fmt.Errorf("error loading owner key: %w", err)
	}
	if !ownerKey.Complete() {
		return "", nil, common.ErrorNotFound
	}

	contentKey, err := cryptox.NewContentKey()
	if err != nil {
		return "", nil, common.ErrorInternal
	}

	wrapped, err := cryptox.AsymmetricEncrypt(contentKey, ownerKey.PublicKey)
	if err != nil {
		return "", nil, fmt.Errorf("error wrapping content key: %w", err)
	}

	projectID := uuid.New().String()
	wrap := &models.KeyWrap{ProjectID: projectID, MemberID: ownerID, WrappedContentKey: wrapped}

	if err := s.repomanager.KeyWraps(s.db).Insert(ctx, wrap); err != nil {
		return "", nil, err
	}

	return projectID, contentKey, nil
}

// AddMember wraps the given plaintext content key under the new member's
// public key and inserts the wrap. The caller obtained the content key by
// unwrapping its own wrap first.
func (s *KeyDistributorService) AddMember(ctx context.Context, projectID, memberID string, memberPublicKey, contentKey []byte) error {
	wrapped, err := cryptox.AsymmetricEncrypt(contentKey, memberPublicKey)
	if err != nil {
		return fmt.Errorf("error wrapping content key: %w", err)
	}

	wrap := &models.KeyWrap{ProjectID: projectID, MemberID: memberID, WrappedContentKey: wrapped}
	return s.repomanager.KeyWraps(s.db).Insert(ctx, wrap)
}

// RemoveMember deletes the member's wrap. The content key is deliberately
// left unchanged; an operator who wants to cut off a removed member who may
// have kept a plaintext copy must call Rotate explicitly.
func (s *KeyDistributorService) RemoveMember(ctx context.Context, projectID, memberID string) error {
	return s.repomanager.KeyWraps(s.db).Delete(ctx, projectID, memberID)
}

// UnwrapForMember decrypts the member's wrap with the member's private key
// and returns the plaintext content key, scoped to this call.
func (s *KeyDistributorService) UnwrapForMember(ctx context.Context, projectID, memberID string, privateKey []byte) ([]byte, error) {
	wrap, err := s.repomanager.KeyWraps(s.db).Get(ctx, projectID, memberID)
	if err != nil {
		return nil, err
	}

	contentKey, err := cryptox.AsymmetricDecrypt(wrap.WrappedContentKey, privateKey)
	if err != nil {
		return nil, err
	}

	return contentKey, nil
}

// Members lists the member ids currently holding a wrap for the project.
func (s *KeyDistributorService) Members(ctx context.Context, projectID string) ([]string, error) {
	wraps, err := s.repomanager.KeyWraps(s.db).ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	members := make([]string, 0, len(wraps))
	for _, w := range wraps {
		members = append(members, w.MemberID)
	}
	return members, nil
}

// Rotate replaces every wrap of the project under a new content key, in one
// transaction. memberKeys maps each surviving member to its public key;
// members left out of the map lose access. Old versions stay encrypted
// under the old key, so callers re-encrypt current content after rotating.
func (s *KeyDistributorService) Rotate(ctx context.Context, projectID string, newContentKey []byte, memberKeys map[string][]byte) error {
	if len(memberKeys) == 0 {
		return fmt.Errorf("rotation requires at least one surviving member")
	}

	wraps := make([]*models.KeyWrap, 0, len(memberKeys))
	for memberID, publicKey := range memberKeys {
		wrapped, err := cryptox.AsymmetricEncrypt(newContentKey, publicKey)
		if err != nil {
			return fmt.Errorf("error wrapping content key for %s: %w", memberID, err)
		}
		wraps = append(wraps, &models.KeyWrap{ProjectID: projectID, MemberID: memberID, WrappedContentKey: wrapped})
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.KeyWraps(tx)
		if err := repo.DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		for _, wrap := range wraps {
			if err := repo.Insert(ctx, wrap); err != nil {
				return err
			}
		}
		return nil
	})
}
