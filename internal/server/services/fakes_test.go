package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/dbx"
	"github.com/envault/envault/internal/logging"
	"github.com/envault/envault/internal/server/models"
	invitationsrepo "github.com/envault/envault/internal/server/repositories/invitations"
	keywrapsrepo "github.com/envault/envault/internal/server/repositories/keywraps"
	userkeysrepo "github.com/envault/envault/internal/server/repositories/userkeys"
	versionsrepo "github.com/envault/envault/internal/server/repositories/versions"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) With(...any) logging.Logger            { return nopLogger{} }

type fakeUserKeysRepo struct {
	records map[string]*models.UserKey

	createErr  error
	getErr     error
	replaceErr error

	replaced *models.UserKey
}

func (f *fakeUserKeysRepo) Create(ctx context.Context, key *models.UserKey) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.records == nil {
		f.records = map[string]*models.UserKey{}
	}
	f.records[key.UserID] = key
	return nil
}

func (f *fakeUserKeysRepo) Get(ctx context.Context, userID string) (*models.UserKey, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	k, ok := f.records[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return k, nil
}

func (f *fakeUserKeysRepo) Replace(ctx context.Context, key *models.UserKey) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = key
	if f.records == nil {
		f.records = map[string]*models.UserKey{}
	}
	f.records[key.UserID] = key
	return nil
}

type fakeKeyWrapsRepo struct {
	wraps map[string]*models.KeyWrap // key: projectID + "/" + memberID

	insertErr error
	deleteErr error
	listOut   []*models.KeyWrap
	listErr   error

	deletedProject string
	deletedMember  string
}

func wrapKey(projectID, memberID string) string { return projectID + "/" + memberID }

func (f *fakeKeyWrapsRepo) Insert(ctx context.Context, wrap *models.KeyWrap) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.wraps == nil {
		f.wraps = map[string]*models.KeyWrap{}
	}
	k := wrapKey(wrap.ProjectID, wrap.MemberID)
	if _, exists := f.wraps[k]; exists {
		return common.ErrorConflict
	}
	f.wraps[k] = wrap
	return nil
}

func (f *fakeKeyWrapsRepo) Get(ctx context.Context, projectID, memberID string) (*models.KeyWrap, error) {
	w, ok := f.wraps[wrapKey(projectID, memberID)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return w, nil
}

func (f *fakeKeyWrapsRepo) Delete(ctx context.Context, projectID, memberID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.wraps, wrapKey(projectID, memberID))
	return nil
}

func (f *fakeKeyWrapsRepo) ListByProject(ctx context.Context, projectID string) ([]*models.KeyWrap, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listOut, nil
}

func (f *fakeKeyWrapsRepo) DeleteByProject(ctx context.Context, projectID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedProject = projectID
	for k, w := range f.wraps {
		if w.ProjectID == projectID {
			delete(f.wraps, k)
		}
	}
	return nil
}

func (f *fakeKeyWrapsRepo) DeleteByMember(ctx context.Context, memberID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedMember = memberID
	return nil
}

type fakeInvitationsRepo struct {
	invitations map[string]*models.Invitation

	insertErr error
	getErr    error
	deleteErr error

	// deleteZero makes Delete report 0 affected rows while leaving the
	// record visible to Get, mimicking a concurrent consume.
	deleteZero bool

	expiredPages [][]string
	listErr      error
}

func (f *fakeInvitationsRepo) Insert(ctx context.Context, inv *models.Invitation) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.invitations == nil {
		f.invitations = map[string]*models.Invitation{}
	}
	f.invitations[inv.ID] = inv
	return nil
}

func (f *fakeInvitationsRepo) Get(ctx context.Context, id string) (*models.Invitation, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	inv, ok := f.invitations[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return inv, nil
}

func (f *fakeInvitationsRepo) Delete(ctx context.Context, id string) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	if f.deleteZero {
		return 0, nil
	}
	if _, ok := f.invitations[id]; !ok {
		return 0, nil
	}
	delete(f.invitations, id)
	return 1, nil
}

func (f *fakeInvitationsRepo) ListExpiredIDs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.expiredPages) == 0 {
		return nil, nil
	}
	page := f.expiredPages[0]
	f.expiredPages = f.expiredPages[1:]
	return page, nil
}

type fakeVersionsRepo struct {
	inserted []*models.SecretVersion

	insertErr error

	latestOut *models.SecretVersion
	latestErr error

	listOut []*models.SecretVersion
	listErr error

	countOut int64
	countErr error

	oldestOut []*models.SecretVersion
	oldestErr error

	deletedIDs []string
	deleteErr  error
}

func (f *fakeVersionsRepo) Insert(ctx context.Context, v *models.SecretVersion) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, v)
	return nil
}

func (f *fakeVersionsRepo) Latest(ctx context.Context, projectID string) (*models.SecretVersion, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latestOut, nil
}

func (f *fakeVersionsRepo) ListByProject(ctx context.Context, projectID string) ([]*models.SecretVersion, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listOut, nil
}

func (f *fakeVersionsRepo) CountByProject(ctx context.Context, projectID string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.countOut, nil
}

func (f *fakeVersionsRepo) ListOldest(ctx context.Context, projectID string, limit int) ([]*models.SecretVersion, error) {
	if f.oldestErr != nil {
		return nil, f.oldestErr
	}
	return f.oldestOut, nil
}

func (f *fakeVersionsRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}

type fakeRepoManager struct {
	uk *fakeUserKeysRepo
	kw *fakeKeyWrapsRepo
	in *fakeInvitationsRepo
	vs *fakeVersionsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error      { return nil }
func (m *fakeRepoManager) UserKeys(db dbx.DBTX) userkeysrepo.Repository      { return m.uk }
func (m *fakeRepoManager) KeyWraps(db dbx.DBTX) keywrapsrepo.Repository      { return m.kw }
func (m *fakeRepoManager) Invitations(db dbx.DBTX) invitationsrepo.Repository {
	return m.in
}
func (m *fakeRepoManager) Versions(db dbx.DBTX) versionsrepo.Repository { return m.vs }
