package models

import "time"

// TokenKind discriminates the two single-use token flows.
type TokenKind string

const (
	TokenKindEmailVerification TokenKind = "email_verification"
	TokenKindPasswordReset     TokenKind = "password_reset"
)

// SecureToken is a persisted single-use, expiring token. At most one unused
// token of a given kind may be valid per account at any instant; issuing a
// new one invalidates all priors of that kind.
type SecureToken struct {
	ID        string
	AccountID string
	Token     string
	Kind      TokenKind
	Used      bool
	Expires   time.Time
	CreatedAt time.Time
}
