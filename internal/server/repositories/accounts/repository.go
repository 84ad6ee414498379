// Package accounts declares the repository contract for the persisted
// identity records of the auth core.
package accounts

import (
	"context"
	"time"

	"github.com/avickovich/taskhive/internal/server/models"
)

// Repository defines the account lookups and mutations used by the auth
// flows. Implementations should return common.ErrorNotFound when a lookup
// misses.
type Repository interface {
	// Create inserts a new account and returns it with its generated id.
	// It exists for the external registration collaborator and for tests.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// GetByEmail looks up a non-deleted account case-insensitively.
	// Soft-deleted accounts are reported as not found.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)

	// GetByID looks up an account by id, including soft-deleted ones so
	// callers can run lazy cleanup on their sessions.
	GetByID(ctx context.Context, id string) (*models.Account, error)

	// RecordLoginFailure persists the failure counter and lock timestamp
	// computed by the lockout policy.
	RecordLoginFailure(ctx context.Context, id string, attempts int, lockUntil *time.Time) error

	// ClearLoginFailures resets the failure counter and removes any lock.
	ClearLoginFailures(ctx context.Context, id string) error

	// SetEmailVerified flips the verified flag.
	SetEmailVerified(ctx context.Context, id string) error

	// UpdatePasswordHash overwrites the stored password hash.
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
}
