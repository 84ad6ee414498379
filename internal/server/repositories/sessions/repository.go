// Package sessions declares the repository contract for the session ledger:
// one row per active refresh-token grant.
package sessions

import (
	"context"
	"time"

	"github.com/avickovich/taskhive/internal/server/models"
)

// Repository defines how sessions are opened, validated and closed.
type Repository interface {
	// Open inserts a session row for the account holding the refresh token
	// until expires.
	Open(ctx context.Context, accountID, refreshToken, clientMeta string, expires time.Time) error

	// Validate returns the session for the refresh token if it expires
	// after now. Expired-but-present rows are treated identically to absent
	// rows: common.ErrorNotFound.
	Validate(ctx context.Context, refreshToken string, now time.Time) (*models.Session, error)

	// CloseOne deletes exactly the matching session. Deleting a missing
	// session is not an error.
	CloseOne(ctx context.Context, accountID, refreshToken string) error

	// CloseAll deletes every session of the account. Idempotent.
	CloseAll(ctx context.Context, accountID string) error
}
