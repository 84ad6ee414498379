package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avickovich/taskhive/internal/common"
	"github.com/avickovich/taskhive/internal/dbx"
	"github.com/avickovich/taskhive/internal/server/models"
)

// PostgresRepository implements the session ledger over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Open(ctx context.Context, accountID, refreshToken, clientMeta string, expires time.Time) error {
	query := `
		INSERT INTO sessions (id, account_id, refresh_token, client_meta, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), accountID, refreshToken, clientMeta, expires); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Validate(ctx context.Context, refreshToken string, now time.Time) (*models.Session, error) {
	query := `
		SELECT id, account_id, refresh_token, client_meta, expires_at, created_at
		FROM sessions
		WHERE refresh_token = $1 AND expires_at > $2
	`
	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, refreshToken, now).Scan(
		&session.ID, &session.AccountID, &session.RefreshToken,
		&session.ClientMeta, &session.Expires, &session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return session, nil
}

func (r *PostgresRepository) CloseOne(ctx context.Context, accountID, refreshToken string) error {
	query := `
		DELETE FROM sessions
		WHERE account_id = $1 AND refresh_token = $2
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, refreshToken); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CloseAll(ctx context.Context, accountID string) error {
	query := `
		DELETE FROM sessions
		WHERE account_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
