package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophbucket/internal/dbx"
	"github.com/dmitrijs2005/gophbucket/internal/server/repositories/identities"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Identities(db dbx.DBTX) identities.Repository
}
