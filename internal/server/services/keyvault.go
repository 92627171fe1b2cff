// Package services contains the server-side core of the key-distribution
// protocol: the user key vault, the project key distributor, the invitation
// relay, the secret version store and the external exporter.
//
// Project content keys are never cached or persisted in plaintext by any
// service here. Every operation that needs one receives it as an explicit
// parameter scoped to the call.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/cryptox"
	"github.com/envault/envault/internal/dbx"
	"github.com/envault/envault/internal/server/models"
	"github.com/envault/envault/internal/server/repositories/repomanager"
)

// KeyVaultService manages per-user asymmetric key pairs. The private half
// is stored only encrypted under a key derived from the user's passphrase;
// the plaintext private key exists solely in the memory of an unlocked
// session.
type KeyVaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewKeyVaultService(db *sql.DB, m repomanager.RepositoryManager) *KeyVaultService {
	return &KeyVaultService{db: db, repomanager: m}
}

// SetUpKeys generates a key pair for the user, encrypts the private half
// under the passphrase-derived key and persists the record. A user with a
// complete record gets common.ErrorAlreadyConfigured; regeneration is a
// separate, explicit operation.
func (s *KeyVaultService) SetUpKeys(ctx context.Context, userID, passphrase string) (*models.UserKey, error) {
	repo := s.repomanager.UserKeys(s.db)

	existing, err := repo.Get(ctx, userID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error loading key record: %w", err)
	}
	if existing != nil && existing.Complete() {
		return nil, common.ErrorAlreadyConfigured
	}

	record, err := s.newKeyRecord(userID, passphrase)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		// A record with a missing half counts as "not set up"; finish it.
		err = repo.Replace(ctx, record)
	} else {
		err = repo.Create(ctx, record)
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Unlock decrypts the user's private key with the passphrase-derived key
// and returns it. A wrong passphrase and a corrupted record are
// indistinguishable: both surface common.ErrorDecryptionFailed.
//
// The returned key lives only in the caller's session memory. Callers wipe
// it when the session ends.
func (s *KeyVaultService) Unlock(ctx context.Context, userID, passphrase string) ([]byte, error) {
	repo := s.repomanager.UserKeys(s.db)

	record, err := repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !record.Complete() {
		return nil, common.ErrorNotFound
	}

	derived := cryptox.DeriveKeyFromPassphrase(passphrase)
	defer common.WipeByteArray(derived[:])

	privatePEM, err := cryptox.SymmetricDecrypt(record.EncryptedPrivateKey, derived[:])
	if err != nil {
		return nil, err
	}

	return privatePEM, nil
}

// RegenerateKeys replaces the user's key pair wholesale. Every project key
// wrap produced for the old public key becomes undecryptable, so the wraps
// are deleted in the same transaction; the user re-joins projects through
// new invitations.
func (s *KeyVaultService) RegenerateKeys(ctx context.Context, userID, passphrase string) (*models.UserKey, error) {
	record, err := s.newKeyRecord(userID, passphrase)
	if err != nil {
		return nil, err
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.UserKeys(tx).Replace(ctx, record); err != nil {
			return err
		}
		return s.repomanager.KeyWraps(tx).DeleteByMember(ctx, userID)
	}); err != nil {
		return nil, err
	}

	return record, nil
}

// PublicKey returns the user's shareable public key.
func (s *KeyVaultService) PublicKey(ctx context.Context, userID string) ([]byte, error) {
	record, err := s.repomanager.UserKeys(s.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !record.Complete() {
		return nil, common.ErrorNotFound
	}
	return record.PublicKey, nil
}

func (s *KeyVaultService) newKeyRecord(userID, passphrase string) (*models.UserKey, error) {
	publicPEM, privatePEM, err := cryptox.GenerateKeyPair()
	if err != nil {
		return nil, common.ErrorInternal
	}
	defer common.WipeByteArray(privatePEM)

	derived := cryptox.DeriveKeyFromPassphrase(passphrase)
	defer common.WipeByteArray(derived[:])

	encryptedPrivate, err := cryptox.SymmetricEncrypt(privatePEM, derived[:])
	if err != nil {
		return nil, common.ErrorInternal
	}

	return &models.UserKey{
		UserID:              userID,
		PublicKey:           publicPEM,
		EncryptedPrivateKey: encryptedPrivate,
	}, nil
}
