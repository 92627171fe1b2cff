package repomanager

import (
	"context"
	"database/sql"

	"github.com/envault/envault/internal/dbx"
	"github.com/envault/envault/internal/server/repositories/invitations"
	"github.com/envault/envault/internal/server/repositories/keywraps"
	"github.com/envault/envault/internal/server/repositories/userkeys"
	"github.com/envault/envault/internal/server/repositories/versions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	UserKeys(db dbx.DBTX) userkeys.Repository
	KeyWraps(db dbx.DBTX) keywraps.Repository
	Invitations(db dbx.DBTX) invitations.Repository
	Versions(db dbx.DBTX) versions.Repository
}
