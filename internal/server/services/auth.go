// Package services contains the server-side business logic. This file
// implements AuthService, the façade over the credential and session
// lifecycle: login, token refresh, logout, email verification, password
// reset and password change.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/avickovich/taskhive/internal/common"
	"github.com/avickovich/taskhive/internal/cryptox"
	"github.com/avickovich/taskhive/internal/dbx"
	"github.com/avickovich/taskhive/internal/logging"
	"github.com/avickovich/taskhive/internal/server/auth"
	"github.com/avickovich/taskhive/internal/server/autherr"
	"github.com/avickovich/taskhive/internal/server/lockout"
	"github.com/avickovich/taskhive/internal/server/models"
	"github.com/avickovich/taskhive/internal/server/notify"
	"github.com/avickovich/taskhive/internal/server/password"
	"github.com/avickovich/taskhive/internal/server/repositories/passwordhistory"
	"github.com/avickovich/taskhive/internal/server/repositories/repomanager"
	"github.com/avickovich/taskhive/internal/timex"
)

// AdvertisedAccessExpiry is the access-token lifetime reported to clients in
// expires_in. It intentionally does not match the signing TTL: the original
// wire contract advertises seven days and existing clients rely on the
// field, so it is preserved here rather than silently corrected.
const AdvertisedAccessExpiry = 7 * 24 * time.Hour

// TTLs of the single-use token kinds.
const (
	VerificationTokenTTL = 24 * time.Hour
	ResetTokenTTL        = time.Hour
)

// Messages returned by the enumeration-safe operations. The "email exists"
// and "email does not exist" paths must produce byte-identical payloads.
const (
	msgResetLinkSent    = "If an account with that email exists, a password reset link has been sent."
	msgVerifyLinkSent   = "If an account with that email exists, a verification link has been sent."
	msgAlreadyVerified  = "This email address is already verified."
	msgPasswordReset    = "Your password has been reset. Please log in again."
	msgPasswordChanged  = "Your password has been changed. Please log in again on your other devices."
	msgEmailVerified    = "Email address verified successfully."
	msgLoggedOut        = "Logged out."
)

// LoginResult is the successful login payload.
type LoginResult struct {
	Account      models.PublicView `json:"account"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresIn    int64             `json:"expires_in"`
}

// RefreshResult carries the re-minted access token. The refresh token is
// not rotated.
type RefreshResult struct {
	AccessToken string `json:"access_token"`
}

// MessageResult is the generic success payload of the message-shaped
// operations.
type MessageResult struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// AuthService orchestrates the credential and session lifecycle. All
// durable state lives in the store; the service itself is stateless and
// safe for concurrent use.
type AuthService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	tokens   *auth.Manager
	hasher   *password.Hasher
	policy   *lockout.Policy
	notifier notify.Notifier
	logger   logging.Logger

	baseURL    string
	minLatency time.Duration
	now        func() time.Time
}

// NewAuthService constructs the orchestrator.
func NewAuthService(
	db *sql.DB,
	repos repomanager.RepositoryManager,
	tokens *auth.Manager,
	hasher *password.Hasher,
	policy *lockout.Policy,
	notifier notify.Notifier,
	logger logging.Logger,
	baseURL string,
	minLatency time.Duration,
) *AuthService {
	return &AuthService{
		db:         db,
		repos:      repos,
		tokens:     tokens,
		hasher:     hasher,
		policy:     policy,
		notifier:   notifier,
		logger:     logger,
		baseURL:    baseURL,
		minLatency: minLatency,
		now:        time.Now,
	}
}

// Login authenticates an email/password pair and opens a session. The same
// InvalidCredentials failure is returned for unknown emails and wrong
// passwords, and the whole operation runs under the latency floor, so the
// two cases cannot be told apart from outside.
func (s *AuthService) Login(ctx context.Context, email, plainPassword, clientMeta string) (*LoginResult, error) {
	return timex.WithMinDuration(ctx, s.minLatency, func(ctx context.Context) (*LoginResult, error) {
		return s.login(ctx, email, plainPassword, clientMeta)
	})
}

func (s *AuthService) login(ctx context.Context, email, plainPassword, clientMeta string) (*LoginResult, error) {
	accountsRepo := s.repos.Accounts(s.db)

	account, err := accountsRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, autherr.InvalidCredentials()
		}
		return nil, s.internal(ctx, "login", err)
	}

	if locked, remaining := s.policy.IsLocked(account, s.now()); locked {
		return nil, autherr.AccountLocked(remaining)
	}

	if !s.hasher.Verify(account.PasswordHash, plainPassword) {
		attempts, lockUntil := s.policy.RecordFailure(account, s.now())
		if err := accountsRepo.RecordLoginFailure(ctx, account.ID, attempts, lockUntil); err != nil {
			// The caller still gets the credentials failure; losing one
			// counter increment only delays the lock by one attempt.
			s.logger.Error(ctx, "recording login failure", "account_id", account.ID, "err", err)
		}
		return nil, autherr.InvalidCredentials()
	}

	if account.FailedLoginAttempts > 0 || account.LockUntil != nil {
		if err := accountsRepo.ClearLoginFailures(ctx, account.ID); err != nil {
			return nil, s.internal(ctx, "login", err)
		}
	}

	if !account.EmailVerified {
		return nil, autherr.EmailNotVerified(account.Email)
	}

	accessToken, err := s.tokens.NewAccessToken(account)
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}
	refreshToken, expires, err := s.tokens.NewRefreshToken(account)
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}
	if err := s.repos.Sessions(s.db).Open(ctx, account.ID, refreshToken, clientMeta, expires); err != nil {
		return nil, s.internal(ctx, "login", err)
	}

	return &LoginResult{
		Account:      account.Public(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(AdvertisedAccessExpiry.Seconds()),
	}, nil
}

// RefreshToken exchanges a valid refresh token for a new access token. The
// refresh token itself must verify cryptographically, be backed by a live
// session row, and belong to a live, unlocked account.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpired) {
			return nil, autherr.TokenExpired()
		}
		return nil, autherr.TokenInvalid()
	}

	session, err := s.repos.Sessions(s.db).Validate(ctx, refreshToken, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, autherr.RefreshFailed()
		}
		return nil, s.internal(ctx, "refresh", err)
	}
	if session.AccountID != claims.Subject {
		return nil, autherr.RefreshFailed()
	}

	account, err := s.repos.Accounts(s.db).GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, autherr.UserNotFound()
		}
		return nil, s.internal(ctx, "refresh", err)
	}

	if account.Deleted() {
		// Lazy cleanup: the account went away after the session was opened.
		if err := s.repos.Sessions(s.db).CloseAll(ctx, account.ID); err != nil {
			s.logger.Error(ctx, "closing sessions of deleted account", "account_id", account.ID, "err", err)
		}
		return nil, autherr.UserNotFound()
	}

	if locked, remaining := s.policy.IsLocked(account, s.now()); locked {
		return nil, autherr.AccountLocked(remaining)
	}

	accessToken, err := s.tokens.NewAccessToken(account)
	if err != nil {
		return nil, s.internal(ctx, "refresh", err)
	}
	return &RefreshResult{AccessToken: accessToken}, nil
}

// Logout closes the session holding refreshToken. It is idempotent: logging
// out a session that is already gone succeeds the same way.
func (s *AuthService) Logout(ctx context.Context, accountID, refreshToken string) (*MessageResult, error) {
	if err := s.repos.Sessions(s.db).CloseOne(ctx, accountID, refreshToken); err != nil {
		return nil, s.internal(ctx, "logout", err)
	}
	return &MessageResult{Message: msgLoggedOut, Success: true}, nil
}

// ForgotPassword issues a password-reset token and notifies the user out of
// band. The response is identical whether or not the email exists, and
// notifier failures are logged but never surfaced.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (*MessageResult, error) {
	return timex.WithMinDuration(ctx, s.minLatency, func(ctx context.Context) (*MessageResult, error) {
		return s.forgotPassword(ctx, email)
	})
}

func (s *AuthService) forgotPassword(ctx context.Context, email string) (*MessageResult, error) {
	account, err := s.repos.Accounts(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &MessageResult{Message: msgResetLinkSent, Success: true}, nil
		}
		return nil, s.internal(ctx, "forgot password", err)
	}

	token, err := s.issueSecureToken(ctx, account.ID, models.TokenKindPasswordReset, ResetTokenTTL)
	if err != nil {
		return nil, s.internal(ctx, "forgot password", err)
	}

	url := s.baseURL + "/reset-password?token=" + token
	if ok := s.notifier.SendPasswordResetLink(ctx, account.Email, account.DisplayName, url); !ok {
		s.logger.Warn(ctx, "password reset notification failed", "account_id", account.ID)
	}

	return &MessageResult{Message: msgResetLinkSent, Success: true}, nil
}

// ResetPassword consumes a reset token and overwrites the password. The
// account update, the token consumption and the session purge commit or
// roll back together.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (*MessageResult, error) {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, s.internal(ctx, "reset password", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokensRepo := s.repos.SecureTokens(tx)

		row, err := tokensRepo.FindValid(ctx, token, models.TokenKindPasswordReset, s.now())
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return autherr.InvalidOrExpiredToken()
			}
			return err
		}

		if err := s.repos.Accounts(tx).UpdatePasswordHash(ctx, row.AccountID, hash); err != nil {
			return err
		}
		if err := tokensRepo.MarkUsed(ctx, row.ID); err != nil {
			return err
		}
		return s.repos.Sessions(tx).CloseAll(ctx, row.AccountID)
	})
	if err != nil {
		var domainErr *autherr.Error
		if errors.As(err, &domainErr) {
			return nil, domainErr
		}
		return nil, s.internal(ctx, "reset password", err)
	}

	return &MessageResult{Message: msgPasswordReset, Success: true}, nil
}

// SendEmailVerification issues a verification token for the account
// resolved by id (when given) or email. Absent accounts get the same
// generic success; already-verified accounts get a distinct success message
// and no token.
func (s *AuthService) SendEmailVerification(ctx context.Context, email, accountID string) (*MessageResult, error) {
	return timex.WithMinDuration(ctx, s.minLatency, func(ctx context.Context) (*MessageResult, error) {
		return s.sendEmailVerification(ctx, email, accountID)
	})
}

func (s *AuthService) sendEmailVerification(ctx context.Context, email, accountID string) (*MessageResult, error) {
	accountsRepo := s.repos.Accounts(s.db)

	var account *models.Account
	var err error
	if accountID != "" {
		account, err = accountsRepo.GetByID(ctx, accountID)
	} else {
		account, err = accountsRepo.GetByEmail(ctx, email)
	}
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &MessageResult{Message: msgVerifyLinkSent, Success: true}, nil
		}
		return nil, s.internal(ctx, "send verification", err)
	}

	if account.EmailVerified {
		return &MessageResult{Message: msgAlreadyVerified, Success: true}, nil
	}

	token, err := s.issueSecureToken(ctx, account.ID, models.TokenKindEmailVerification, VerificationTokenTTL)
	if err != nil {
		return nil, s.internal(ctx, "send verification", err)
	}

	url := s.baseURL + "/verify-email?token=" + token
	if ok := s.notifier.SendVerificationLink(ctx, account.Email, account.DisplayName, url); !ok {
		s.logger.Warn(ctx, "verification notification failed", "account_id", account.ID)
	}

	return &MessageResult{Message: msgVerifyLinkSent, Success: true}, nil
}

// VerifyEmail consumes a verification token and flips the verified flag.
// The flag update and the token consumption are one transaction, and the
// latency floor keeps "not found", "already verified" and "success"
// indistinguishable by response time.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*MessageResult, error) {
	return timex.WithMinDuration(ctx, s.minLatency, func(ctx context.Context) (*MessageResult, error) {
		return s.verifyEmail(ctx, token)
	})
}

func (s *AuthService) verifyEmail(ctx context.Context, token string) (*MessageResult, error) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokensRepo := s.repos.SecureTokens(tx)

		row, err := tokensRepo.FindValid(ctx, token, models.TokenKindEmailVerification, s.now())
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return autherr.InvalidOrExpiredToken()
			}
			return err
		}

		account, err := s.repos.Accounts(tx).GetByID(ctx, row.AccountID)
		if err != nil {
			return err
		}
		if account.EmailVerified {
			return autherr.AlreadySatisfied(msgAlreadyVerified)
		}

		if err := s.repos.Accounts(tx).SetEmailVerified(ctx, account.ID); err != nil {
			return err
		}
		return tokensRepo.MarkUsed(ctx, row.ID)
	})
	if err != nil {
		var domainErr *autherr.Error
		if errors.As(err, &domainErr) {
			return nil, domainErr
		}
		return nil, s.internal(ctx, "verify email", err)
	}

	return &MessageResult{Message: msgEmailVerified, Success: true}, nil
}

// ChangePassword verifies the current password, rejects reuse of the
// current or any of the last five historical passwords, and then swaps the
// hash, records the old one and purges all sessions in one transaction.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) (*MessageResult, error) {
	account, err := s.repos.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, autherr.UserNotFound()
		}
		return nil, s.internal(ctx, "change password", err)
	}
	if account.Deleted() {
		return nil, autherr.UserNotFound()
	}

	if !s.hasher.Verify(account.PasswordHash, currentPassword) {
		return nil, autherr.Unauthorized()
	}
	if s.hasher.Verify(account.PasswordHash, newPassword) {
		return nil, autherr.SameAsCurrent()
	}

	history, err := s.repos.PasswordHistory(s.db).ListRecent(ctx, accountID, passwordhistory.KeepLast)
	if err != nil {
		return nil, s.internal(ctx, "change password", err)
	}
	for _, entry := range history {
		if s.hasher.Verify(entry.PasswordHash, newPassword) {
			return nil, autherr.RecentlyUsed()
		}
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, s.internal(ctx, "change password", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		historyRepo := s.repos.PasswordHistory(tx)
		if err := historyRepo.Add(ctx, accountID, account.PasswordHash); err != nil {
			return err
		}
		if err := historyRepo.Prune(ctx, accountID, passwordhistory.KeepLast); err != nil {
			return err
		}
		if err := s.repos.Accounts(tx).UpdatePasswordHash(ctx, accountID, newHash); err != nil {
			return err
		}
		return s.repos.Sessions(tx).CloseAll(ctx, accountID)
	})
	if err != nil {
		return nil, s.internal(ctx, "change password", err)
	}

	return &MessageResult{Message: msgPasswordChanged, Success: true}, nil
}

// GetProfile returns the account's public projection: no password hash, no
// lockout bookkeeping.
func (s *AuthService) GetProfile(ctx context.Context, accountID string) (*models.PublicView, error) {
	account, err := s.repos.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, autherr.UserNotFound()
		}
		return nil, s.internal(ctx, "get profile", err)
	}
	if account.Deleted() {
		return nil, autherr.UserNotFound()
	}
	view := account.Public()
	return &view, nil
}

// issueAttempts bounds the retries of the invalidate-and-insert below.
const issueAttempts = 3

// issueSecureToken invalidates all unused tokens of the kind and inserts a
// fresh one in a single transaction. The transaction alone does not
// serialize two issuers racing on the same (account, kind): under read
// committed both can pass InvalidateUnused without seeing the other's
// insert. The partial unique index on unused rows turns the loser's insert
// into common.ErrorConflict, and the whole transaction is retried so
// exactly one unused token survives.
func (s *AuthService) issueSecureToken(ctx context.Context, accountID string, kind models.TokenKind, ttl time.Duration) (string, error) {
	var err error
	for attempt := 0; attempt < issueAttempts; attempt++ {
		var token string
		token, err = cryptox.NewToken()
		if err != nil {
			return "", err
		}

		err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			tokensRepo := s.repos.SecureTokens(tx)
			if err := tokensRepo.InvalidateUnused(ctx, accountID, kind); err != nil {
				return err
			}
			return tokensRepo.Create(ctx, &models.SecureToken{
				AccountID: accountID,
				Token:     token,
				Kind:      kind,
				Expires:   s.now().Add(ttl),
			})
		})
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, common.ErrorConflict) {
			return "", err
		}
	}
	return "", err
}

// internal logs the full fault server-side and returns the generic failure;
// raw store errors never reach callers.
func (s *AuthService) internal(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, "auth operation failed", "op", op, "err", err)
	return autherr.Internal()
}
