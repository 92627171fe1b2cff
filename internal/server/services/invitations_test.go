package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/cryptox"
	"github.com/envault/envault/internal/server/models"
)

func TestInvitationCreate_StoresNothingUsableWithoutPassphrase(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	in := &fakeInvitationsRepo{}
	s := NewInvitationService(db, &fakeRepoManager{in: in}, 24*time.Hour, nopLogger{})

	contentKey, _ := cryptox.NewContentKey()
	inv, err := s.Create(context.Background(), "p-1", "alice", "otp-1234", contentKey)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if inv.ProjectID != "p-1" || inv.AuthorID != "alice" || inv.ID == "" {
		t.Fatalf("unexpected invitation: %+v", inv)
	}

	// Wrong passphrase cannot recover the temp private key.
	derived := cryptox.DeriveKeyFromPassphrase("wrong")
	if _, err := cryptox.SymmetricDecrypt(inv.TemporaryPrivateKeyEncrypted, derived[:]); !errors.Is(err, common.ErrorDecryptionFailed) {
		t.Fatalf("temp private key opened with wrong passphrase: %v", err)
	}
}

func TestInvitationAccept_RoundTrip(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	in := &fakeInvitationsRepo{}
	kw := &fakeKeyWrapsRepo{}
	s := NewInvitationService(db, &fakeRepoManager{in: in, kw: kw}, 24*time.Hour, nopLogger{})

	contentKey, _ := cryptox.NewContentKey()
	inv, err := s.Create(context.Background(), "p-1", "alice", "otp-1234", contentKey)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	inviteePub, inviteePriv := testKeyPair(t)
	res, err := s.Accept(context.Background(), inv.ID, "otp-1234", inviteePub, "bob")
	if err != nil {
		t.Fatalf("Accept error: %v", err)
	}
	if res.ProjectID != "p-1" || res.MemberID != "bob" {
		t.Fatalf("unexpected result: %+v", res)
	}

	// The invitee's stored wrap opens to the original content key.
	wrap, err := kw.Get(context.Background(), "p-1", "bob")
	if err != nil {
		t.Fatalf("wrap not stored: %v", err)
	}
	got, err := cryptox.AsymmetricDecrypt(wrap.WrappedContentKey, inviteePriv)
	if err != nil || !bytes.Equal(got, contentKey) {
		t.Fatalf("invitee cannot unwrap content key: err=%v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestInvitationAccept_SingleUse(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	in := &fakeInvitationsRepo{}
	kw := &fakeKeyWrapsRepo{}
	s := NewInvitationService(db, &fakeRepoManager{in: in, kw: kw}, 24*time.Hour, nopLogger{})

	contentKey, _ := cryptox.NewContentKey()
	inv, _ := s.Create(context.Background(), "p-1", "alice", "otp", contentKey)

	inviteePub, _ := testKeyPair(t)
	if _, err := s.Accept(context.Background(), inv.ID, "otp", inviteePub, "bob"); err != nil {
		t.Fatalf("first Accept error: %v", err)
	}
	if _, err := s.Accept(context.Background(), inv.ID, "otp", inviteePub, "carol"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("second Accept: want ErrorNotFound, got %v", err)
	}
}

func TestInvitationAccept_WrongPassphrase(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	in := &fakeInvitationsRepo{}
	s := NewInvitationService(db, &fakeRepoManager{in: in}, 24*time.Hour, nopLogger{})

	contentKey, _ := cryptox.NewContentKey()
	inv, _ := s.Create(context.Background(), "p-1", "alice", "right", contentKey)

	inviteePub, _ := testKeyPair(t)
	if _, err := s.Accept(context.Background(), inv.ID, "wrong", inviteePub, "bob"); !errors.Is(err, common.ErrorDecryptionFailed) {
		t.Fatalf("want ErrorDecryptionFailed, got %v", err)
	}

	// A failed accept consumes nothing.
	if _, err := in.Get(context.Background(), inv.ID); err != nil {
		t.Fatalf("invitation gone after failed accept: %v", err)
	}
}

func TestInvitationAccept_Expired(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	in := &fakeInvitationsRepo{invitations: map[string]*models.Invitation{
		"i-old": {ID: "i-old", ProjectID: "p-1", CreatedAt: time.Now().Add(-48 * time.Hour)},
	}}
	s := NewInvitationService(db, &fakeRepoManager{in: in}, 24*time.Hour, nopLogger{})

	inviteePub, _ := testKeyPair(t)
	if _, err := s.Accept(context.Background(), "i-old", "otp", inviteePub, "bob"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound for expired invitation, got %v", err)
	}
}

func TestInvitationAccept_ConsumedConcurrentlyRollsBack(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	in := &fakeInvitationsRepo{}
	kw := &fakeKeyWrapsRepo{}
	s := NewInvitationService(db, &fakeRepoManager{in: in, kw: kw}, 24*time.Hour, nopLogger{})

	contentKey, _ := cryptox.NewContentKey()
	inv, _ := s.Create(context.Background(), "p-1", "alice", "otp", contentKey)

	// Simulate a concurrent consume between the read and the delete.
	in.deleteZero = true

	inviteePub, _ := testKeyPair(t)
	_, err := s.Accept(context.Background(), inv.ID, "otp", inviteePub, "bob")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestInvitationRevoke_Idempotent(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	in := &fakeInvitationsRepo{invitations: map[string]*models.Invitation{
		"i-1": {ID: "i-1"},
	}}
	s := NewInvitationService(db, &fakeRepoManager{in: in}, 24*time.Hour, nopLogger{})

	if err := s.Revoke(context.Background(), "i-1"); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if err := s.Revoke(context.Background(), "i-1"); err != nil {
		t.Fatalf("second Revoke error: %v", err)
	}
}

func TestSweepExpired_Pages(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	// A full first page forces a second ListExpiredIDs call.
	fullPage := make([]string, sweepPageSize)
	invitations := map[string]*models.Invitation{}
	for i := range fullPage {
		id := "i-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		fullPage[i] = id
		invitations[id] = &models.Invitation{ID: id}
	}
	invitations["i-last"] = &models.Invitation{ID: "i-last"}

	in := &fakeInvitationsRepo{
		invitations:  invitations,
		expiredPages: [][]string{fullPage, {"i-last"}},
	}
	s := NewInvitationService(db, &fakeRepoManager{in: in}, 24*time.Hour, nopLogger{})

	removed, err := s.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired error: %v", err)
	}
	if removed != sweepPageSize+1 {
		t.Fatalf("want %d removed, got %d", sweepPageSize+1, removed)
	}
	if len(in.invitations) != 0 {
		t.Fatalf("expired invitations left behind: %d", len(in.invitations))
	}
}

func TestSweepExpired_Empty(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := NewInvitationService(db, &fakeRepoManager{in: &fakeInvitationsRepo{}}, 24*time.Hour, nopLogger{})

	removed, err := s.SweepExpired(context.Background())
	if err != nil || removed != 0 {
		t.Fatalf("SweepExpired: removed=%d err=%v", removed, err)
	}
}
