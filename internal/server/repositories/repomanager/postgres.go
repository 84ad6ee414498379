// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/avickovich/taskhive/internal/dbx"
	"github.com/avickovich/taskhive/internal/server/migrations"
	"github.com/avickovich/taskhive/internal/server/repositories/accounts"
	"github.com/avickovich/taskhive/internal/server/repositories/passwordhistory"
	"github.com/avickovich/taskhive/internal/server/repositories/securetokens"
	"github.com/avickovich/taskhive/internal/server/repositories/sessions"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

// Accounts returns an accounts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

// Sessions returns a sessions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

// SecureTokens returns a securetokens.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) SecureTokens(db dbx.DBTX) securetokens.Repository {
	return securetokens.NewPostgresRepository(db)
}

// PasswordHistory returns a passwordhistory.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) PasswordHistory(db dbx.DBTX) passwordhistory.Repository {
	return passwordhistory.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
