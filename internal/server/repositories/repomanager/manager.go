package repomanager

import (
	"context"
	"database/sql"

	"github.com/avickovich/taskhive/internal/dbx"
	"github.com/avickovich/taskhive/internal/server/repositories/accounts"
	"github.com/avickovich/taskhive/internal/server/repositories/passwordhistory"
	"github.com/avickovich/taskhive/internal/server/repositories/securetokens"
	"github.com/avickovich/taskhive/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to a DBTX, so the service layer
// can run the same repository code against *sql.DB or an open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	SecureTokens(db dbx.DBTX) securetokens.Repository
	PasswordHistory(db dbx.DBTX) passwordhistory.Repository
}
