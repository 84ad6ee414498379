package models

import "time"

// Roles an account can hold in the marketplace.
const (
	RoleClient       = "client"
	RoleProfessional = "professional"
)

// Account is the persisted identity record. Emails are stored lowercase and
// compared case-insensitively. A soft-deleted account (DeletedAt set) is
// never authenticatable.
type Account struct {
	ID                  string
	Email               string
	PasswordHash        string
	DisplayName         string
	Role                string
	EmailVerified       bool
	FailedLoginAttempts int
	LockUntil           *time.Time
	DeletedAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Deleted reports whether the account has been soft-deleted.
func (a *Account) Deleted() bool {
	return a.DeletedAt != nil
}

// PublicView is the account projection handed to callers: no password hash,
// no lockout bookkeeping.
type PublicView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Public returns the stripped projection of the account.
func (a *Account) Public() PublicView {
	return PublicView{
		ID:            a.ID,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}
