package passwordhistory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/avickovich/taskhive/internal/dbx"
	"github.com/avickovich/taskhive/internal/server/models"
)

// PostgresRepository implements the password-history ring over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListRecent(ctx context.Context, accountID string, limit int) ([]models.PasswordHistoryEntry, error) {
	query := `
		SELECT id, account_id, password_hash, created_at
		FROM password_history
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var entries []models.PasswordHistoryEntry
	for rows.Next() {
		var e models.PasswordHistoryEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.PasswordHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entries, nil
}

func (r *PostgresRepository) Add(ctx context.Context, accountID string, hash string) error {
	query := `
		INSERT INTO password_history (id, account_id, password_hash)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), accountID, hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Prune(ctx context.Context, accountID string, keep int) error {
	query := `
		DELETE FROM password_history
		WHERE account_id = $1 AND id NOT IN (
			SELECT id FROM password_history
			WHERE account_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		)
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, keep); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
