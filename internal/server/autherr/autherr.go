// Package autherr defines the failure taxonomy of the auth core. Every
// domain failure carries a stable machine-readable kind, a user-facing
// message, and optional structured details. Infrastructure faults never
// leave the service layer as anything but KindInternal.
package autherr

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable failure code.
type Kind string

const (
	KindInvalidCredentials    Kind = "invalid_credentials"
	KindAccountLocked         Kind = "account_locked"
	KindEmailNotVerified      Kind = "email_not_verified"
	KindTokenInvalid          Kind = "token_invalid"
	KindTokenExpired          Kind = "token_expired"
	KindRefreshFailed         Kind = "refresh_failed"
	KindUserNotFound          Kind = "user_not_found"
	KindInvalidOrExpiredToken Kind = "invalid_or_expired_token"
	KindAlreadySatisfied      Kind = "already_satisfied"
	KindUnauthorized          Kind = "unauthorized"
	KindSameAsCurrent         Kind = "same_as_current"
	KindRecentlyUsed          Kind = "recently_used"
	KindInternal              Kind = "internal"
)

// Error is a tagged domain failure.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches errors by kind, so errors.Is(err, autherr.ErrAccountLocked)
// works regardless of the attached details.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Templates usable as errors.Is targets.
var (
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrAccountLocked         = &Error{Kind: KindAccountLocked}
	ErrEmailNotVerified      = &Error{Kind: KindEmailNotVerified}
	ErrTokenInvalid          = &Error{Kind: KindTokenInvalid}
	ErrTokenExpired          = &Error{Kind: KindTokenExpired}
	ErrRefreshFailed         = &Error{Kind: KindRefreshFailed}
	ErrUserNotFound          = &Error{Kind: KindUserNotFound}
	ErrInvalidOrExpiredToken = &Error{Kind: KindInvalidOrExpiredToken}
	ErrAlreadySatisfied      = &Error{Kind: KindAlreadySatisfied}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrSameAsCurrent         = &Error{Kind: KindSameAsCurrent}
	ErrRecentlyUsed          = &Error{Kind: KindRecentlyUsed}
	ErrInternal              = &Error{Kind: KindInternal}
)

// InvalidCredentials is returned for unknown emails and wrong passwords
// alike; the message must not reveal which it was.
func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
}

// AccountLocked carries the remaining lock time in whole minutes.
func AccountLocked(remainingMinutes int) *Error {
	return &Error{
		Kind:    KindAccountLocked,
		Message: fmt.Sprintf("account temporarily locked, try again in %d minutes", remainingMinutes),
		Details: map[string]any{"remaining_minutes": remainingMinutes},
	}
}

func EmailNotVerified(email string) *Error {
	return &Error{
		Kind:    KindEmailNotVerified,
		Message: "email address is not verified",
		Details: map[string]any{"email": email},
	}
}

func TokenInvalid() *Error {
	return &Error{Kind: KindTokenInvalid, Message: "token is invalid"}
}

func TokenExpired() *Error {
	return &Error{Kind: KindTokenExpired, Message: "token has expired"}
}

func RefreshFailed() *Error {
	return &Error{Kind: KindRefreshFailed, Message: "could not refresh session"}
}

func UserNotFound() *Error {
	return &Error{Kind: KindUserNotFound, Message: "user not found"}
}

func InvalidOrExpiredToken() *Error {
	return &Error{Kind: KindInvalidOrExpiredToken, Message: "token is invalid or has expired"}
}

func AlreadySatisfied(message string) *Error {
	return &Error{Kind: KindAlreadySatisfied, Message: message}
}

func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Message: "current password is incorrect"}
}

func SameAsCurrent() *Error {
	return &Error{Kind: KindSameAsCurrent, Message: "new password must differ from the current password"}
}

func RecentlyUsed() *Error {
	return &Error{Kind: KindRecentlyUsed, Message: "new password was used recently, choose another one"}
}

// Internal hides infrastructure faults from callers. The original error is
// expected to have been logged with full context before this is returned.
func Internal() *Error {
	return &Error{Kind: KindInternal, Message: "something went wrong, please try again later"}
}

// AsError extracts the tagged domain failure from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf extracts the failure kind from an error chain, or KindInternal if
// the error is not a tagged domain failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
