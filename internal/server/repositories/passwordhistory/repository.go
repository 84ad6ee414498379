// Package passwordhistory declares the repository contract for prior
// password hashes used in reuse checks.
package passwordhistory

import (
	"context"

	"github.com/avickovich/taskhive/internal/server/models"
)

// KeepLast is how many prior hashes are retained per account.
const KeepLast = 5

// Repository defines access to the per-account password history ring.
type Repository interface {
	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, accountID string, limit int) ([]models.PasswordHistoryEntry, error)

	// Add inserts a prior hash for the account.
	Add(ctx context.Context, accountID string, hash string) error

	// Prune deletes all but the keep newest entries for the account.
	Prune(ctx context.Context, accountID string, keep int) error
}
