// Package securetokens declares the repository contract for single-use
// verification and reset tokens.
package securetokens

import (
	"context"
	"time"

	"github.com/avickovich/taskhive/internal/server/models"
)

// Repository defines the primitive operations of the secure-token ledger.
// Issuing a token is InvalidateUnused followed by Create inside one
// transaction; consuming is FindValid followed by MarkUsed inside the same
// transaction as the associated side effect.
type Repository interface {
	// InvalidateUnused marks every unused token of the kind for the account
	// as used, so at most one valid token per (account, kind) can exist.
	InvalidateUnused(ctx context.Context, accountID string, kind models.TokenKind) error

	// Create inserts a fresh unused token row.
	Create(ctx context.Context, token *models.SecureToken) error

	// FindValid returns the unused, unexpired token row matching token and
	// kind, or common.ErrorNotFound. Used and absent tokens are
	// indistinguishable to the caller.
	FindValid(ctx context.Context, token string, kind models.TokenKind, now time.Time) (*models.SecureToken, error)

	// MarkUsed consumes the token row.
	MarkUsed(ctx context.Context, id string) error
}
