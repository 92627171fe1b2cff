package versions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+secret_versions\s*\(id,\s*project_id,\s*author_id,\s*encrypted_content\)`).
		WithArgs("v-1", "p-1", "alice", []byte("cipher")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	v := &models.SecretVersion{ID: "v-1", ProjectID: "p-1", AuthorID: "alice", EncryptedContent: []byte("cipher")}
	if err := repo.Insert(context.Background(), v); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
}

func TestLatest_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "project_id", "author_id", "encrypted_content", "created_at"}).
		AddRow("v-2", "p-1", "alice", []byte("newest"), time.Now())
	mock.ExpectQuery(`(?s)SELECT\s+id.*ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+1`).
		WithArgs("p-1").
		WillReturnRows(rows)

	got, err := repo.Latest(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got.ID != "v-2" {
		t.Fatalf("unexpected version: %+v", got)
	}
}

func TestLatest_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id`).
		WithArgs("p-empty").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Latest(context.Background(), "p-empty")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestListByProject_DescendingOrder(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "author_id", "encrypted_content", "created_at"}).
		AddRow("v-2", "p-1", "alice", []byte("c2"), now).
		AddRow("v-1", "p-1", "alice", []byte("c1"), now.Add(-time.Minute))
	mock.ExpectQuery(`(?s)SELECT\s+id.*ORDER\s+BY\s+created_at\s+DESC`).
		WithArgs("p-1").
		WillReturnRows(rows)

	got, err := repo.ListByProject(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("ListByProject error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "v-2" || got[1].ID != "v-1" {
		t.Fatalf("unexpected versions: %+v", got)
	}
}

func TestCountByProject(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)\s+FROM\s+secret_versions`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(105)))

	count, err := repo.CountByProject(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("CountByProject error: %v", err)
	}
	if count != 105 {
		t.Fatalf("want 105, got %d", count)
	}
}

func TestListOldest(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "author_id", "encrypted_content", "created_at"}).
		AddRow("v-1", "p-1", "alice", []byte("c1"), now.Add(-2*time.Hour)).
		AddRow("v-2", "p-1", "alice", []byte("c2"), now.Add(-time.Hour))
	mock.ExpectQuery(`(?s)SELECT\s+id.*ORDER\s+BY\s+created_at\s+LIMIT\s+\$2`).
		WithArgs("p-1", 5).
		WillReturnRows(rows)

	got, err := repo.ListOldest(context.Background(), "p-1", 5)
	if err != nil {
		t.Fatalf("ListOldest error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "v-1" {
		t.Fatalf("unexpected versions: %+v", got)
	}
}

func TestDeleteByIDs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+secret_versions\s+WHERE\s+id\s+IN\s+\(\$1,\s*\$2\)`).
		WithArgs("v-1", "v-2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.DeleteByIDs(context.Background(), []string{"v-1", "v-2"}); err != nil {
		t.Fatalf("DeleteByIDs error: %v", err)
	}
}

func TestDeleteByIDs_EmptyNoQuery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	if err := repo.DeleteByIDs(context.Background(), nil); err != nil {
		t.Fatalf("DeleteByIDs error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}
