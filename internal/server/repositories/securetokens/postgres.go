package securetokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avickovich/taskhive/internal/common"
	"github.com/avickovich/taskhive/internal/dbx"
	"github.com/avickovich/taskhive/internal/server/models"
)

// PostgresRepository implements the secure-token ledger over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InvalidateUnused(ctx context.Context, accountID string, kind models.TokenKind) error {
	query := `
		UPDATE secure_tokens
		SET used = true
		WHERE account_id = $1 AND kind = $2 AND used = false
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, kind); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Create inserts a fresh unused token row. A concurrent issuer that already
// holds the unused slot for this (account, kind) trips the partial unique
// index; that case is reported as common.ErrorConflict so the caller can
// retry its invalidate-and-insert.
func (r *PostgresRepository) Create(ctx context.Context, token *models.SecureToken) error {
	query := `
		INSERT INTO secure_tokens (id, account_id, token, kind, used, expires_at)
		VALUES ($1, $2, $3, $4, false, $5)
	`
	token.ID = uuid.NewString()
	if _, err := r.db.ExecContext(ctx, query, token.ID, token.AccountID, token.Token, token.Kind, token.Expires); err != nil {
		if isUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresRepository) FindValid(ctx context.Context, token string, kind models.TokenKind, now time.Time) (*models.SecureToken, error) {
	query := `
		SELECT id, account_id, token, kind, used, expires_at, created_at
		FROM secure_tokens
		WHERE token = $1 AND kind = $2 AND used = false AND expires_at > $3
	`
	st := &models.SecureToken{}
	err := r.db.QueryRowContext(ctx, query, token, kind, now).Scan(
		&st.ID, &st.AccountID, &st.Token, &st.Kind, &st.Used, &st.Expires, &st.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return st, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) error {
	query := `
		UPDATE secure_tokens
		SET used = true
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
