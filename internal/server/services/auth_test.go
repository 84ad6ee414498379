package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/avickovich/taskhive/internal/common"
	"github.com/avickovich/taskhive/internal/dbx"
	"github.com/avickovich/taskhive/internal/logging"
	"github.com/avickovich/taskhive/internal/server/auth"
	"github.com/avickovich/taskhive/internal/server/autherr"
	"github.com/avickovich/taskhive/internal/server/lockout"
	"github.com/avickovich/taskhive/internal/server/models"
	"github.com/avickovich/taskhive/internal/server/password"
	accountsrepo "github.com/avickovich/taskhive/internal/server/repositories/accounts"
	historyrepo "github.com/avickovich/taskhive/internal/server/repositories/passwordhistory"
	tokensrepo "github.com/avickovich/taskhive/internal/server/repositories/securetokens"
	"github.com/avickovich/taskhive/internal/server/repositories/repomanager"
	sessionsrepo "github.com/avickovich/taskhive/internal/server/repositories/sessions"
)

// --- stateful in-memory store shared by the fake repositories ---

type memStore struct {
	mu       sync.Mutex
	seq      int
	accounts map[string]*models.Account      // by id
	sessions map[string]*models.Session      // by refresh token
	tokens   map[string]*models.SecureToken  // by token string
	history  map[string][]models.PasswordHistoryEntry // by account id, newest first
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*models.Account),
		sessions: make(map[string]*models.Session),
		tokens:   make(map[string]*models.SecureToken),
		history:  make(map[string][]models.PasswordHistoryEntry),
	}
}

func (s *memStore) nextID() string {
	s.seq++
	return fmt.Sprintf("id-%04d", s.seq)
}

type fakeAccountsRepo struct {
	store *memStore
	fail  error
}

func (f *fakeAccountsRepo) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	a.ID = f.store.nextID()
	f.store.accounts[a.ID] = a
	return a, nil
}

func (f *fakeAccountsRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, a := range f.store.accounts {
		if a.Email == email && a.DeletedAt == nil {
			clone := *a
			return &clone, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	a, ok := f.store.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	clone := *a
	return &clone, nil
}

func (f *fakeAccountsRepo) RecordLoginFailure(ctx context.Context, id string, attempts int, lockUntil *time.Time) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if a, ok := f.store.accounts[id]; ok {
		a.FailedLoginAttempts = attempts
		a.LockUntil = lockUntil
	}
	return nil
}

func (f *fakeAccountsRepo) ClearLoginFailures(ctx context.Context, id string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if a, ok := f.store.accounts[id]; ok {
		a.FailedLoginAttempts = 0
		a.LockUntil = nil
	}
	return nil
}

func (f *fakeAccountsRepo) SetEmailVerified(ctx context.Context, id string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if a, ok := f.store.accounts[id]; ok {
		a.EmailVerified = true
	}
	return nil
}

func (f *fakeAccountsRepo) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if a, ok := f.store.accounts[id]; ok {
		a.PasswordHash = hash
	}
	return nil
}

type fakeSessionsRepo struct {
	store *memStore
	fail  error
}

func (f *fakeSessionsRepo) Open(ctx context.Context, accountID, refreshToken, clientMeta string, expires time.Time) error {
	if f.fail != nil {
		return f.fail
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.sessions[refreshToken] = &models.Session{
		ID:           f.store.nextID(),
		AccountID:    accountID,
		RefreshToken: refreshToken,
		ClientMeta:   clientMeta,
		Expires:      expires,
	}
	return nil
}

func (f *fakeSessionsRepo) Validate(ctx context.Context, refreshToken string, now time.Time) (*models.Session, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	sess, ok := f.store.sessions[refreshToken]
	if !ok || !sess.Expires.After(now) {
		return nil, common.ErrorNotFound
	}
	clone := *sess
	return &clone, nil
}

func (f *fakeSessionsRepo) CloseOne(ctx context.Context, accountID, refreshToken string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if sess, ok := f.store.sessions[refreshToken]; ok && sess.AccountID == accountID {
		delete(f.store.sessions, refreshToken)
	}
	return nil
}

func (f *fakeSessionsRepo) CloseAll(ctx context.Context, accountID string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for token, sess := range f.store.sessions {
		if sess.AccountID == accountID {
			delete(f.store.sessions, token)
		}
	}
	return nil
}

type fakeSecureTokensRepo struct {
	store *memStore
	fail  error
	// conflicts makes the next n Create calls lose the unused-slot race.
	conflicts int
}

func (f *fakeSecureTokensRepo) InvalidateUnused(ctx context.Context, accountID string, kind models.TokenKind) error {
	if f.fail != nil {
		return f.fail
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, t := range f.store.tokens {
		if t.AccountID == accountID && t.Kind == kind && !t.Used {
			t.Used = true
		}
	}
	return nil
}

func (f *fakeSecureTokensRepo) Create(ctx context.Context, token *models.SecureToken) error {
	if f.fail != nil {
		return f.fail
	}
	if f.conflicts > 0 {
		f.conflicts--
		return common.ErrorConflict
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	token.ID = f.store.nextID()
	f.store.tokens[token.Token] = token
	return nil
}

func (f *fakeSecureTokensRepo) FindValid(ctx context.Context, token string, kind models.TokenKind, now time.Time) (*models.SecureToken, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	t, ok := f.store.tokens[token]
	if !ok || t.Kind != kind || t.Used || !t.Expires.After(now) {
		return nil, common.ErrorNotFound
	}
	clone := *t
	return &clone, nil
}

func (f *fakeSecureTokensRepo) MarkUsed(ctx context.Context, id string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, t := range f.store.tokens {
		if t.ID == id {
			t.Used = true
		}
	}
	return nil
}

type fakeHistoryRepo struct {
	store *memStore
}

func (f *fakeHistoryRepo) ListRecent(ctx context.Context, accountID string, limit int) ([]models.PasswordHistoryEntry, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	entries := f.store.history[accountID]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]models.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (f *fakeHistoryRepo) Add(ctx context.Context, accountID string, hash string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	entry := models.PasswordHistoryEntry{
		ID:           f.store.nextID(),
		AccountID:    accountID,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	f.store.history[accountID] = append([]models.PasswordHistoryEntry{entry}, f.store.history[accountID]...)
	return nil
}

func (f *fakeHistoryRepo) Prune(ctx context.Context, accountID string, keep int) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	entries := f.store.history[accountID]
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if len(entries) > keep {
		f.store.history[accountID] = entries[:keep]
	}
	return nil
}

type fakeRepoManager struct {
	store    *memStore
	accounts *fakeAccountsRepo
	sessions *fakeSessionsRepo
	tokens   *fakeSecureTokensRepo
	history  *fakeHistoryRepo
}

func newFakeRepoManager() *fakeRepoManager {
	store := newMemStore()
	return &fakeRepoManager{
		store:    store,
		accounts: &fakeAccountsRepo{store: store},
		sessions: &fakeSessionsRepo{store: store},
		tokens:   &fakeSecureTokensRepo{store: store},
		history:  &fakeHistoryRepo{store: store},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accountsrepo.Repository    { return m.accounts }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessionsrepo.Repository    { return m.sessions }
func (m *fakeRepoManager) SecureTokens(dbx.DBTX) tokensrepo.Repository  { return m.tokens }
func (m *fakeRepoManager) PasswordHistory(dbx.DBTX) historyrepo.Repository {
	return m.history
}

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

type fakeNotifier struct {
	mu            sync.Mutex
	ok            bool
	verifyCalls   []string // urls
	resetCalls    []string // urls
}

func (n *fakeNotifier) SendVerificationLink(ctx context.Context, email, name, url string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifyCalls = append(n.verifyCalls, url)
	return n.ok
}

func (n *fakeNotifier) SendPasswordResetLink(ctx context.Context, email, name, url string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetCalls = append(n.resetCalls, url)
	return n.ok
}

// --- harness ---

type harness struct {
	svc      *AuthService
	repos    *fakeRepoManager
	notifier *fakeNotifier
	hasher   *password.Hasher
	db       *sql.DB
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)
	// The fakes ignore the transactional handle; just let every Begin,
	// Commit and Rollback that WithTx produces pass through.
	for i := 0; i < 32; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}

	repos := newFakeRepoManager()
	notifier := &fakeNotifier{ok: true}
	hasher := password.NewHasher(bcrypt.MinCost)
	tokens := auth.NewManager("access-secret", "refresh-secret", 15*time.Minute, 30*24*time.Hour)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	h := &harness{
		repos:    repos,
		notifier: notifier,
		hasher:   hasher,
		db:       db,
		clock:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	svc := NewAuthService(db, repos, tokens, hasher, lockout.NewPolicy(5, 30*time.Minute),
		notifier, logger, "https://taskhive.example.com", 0)
	svc.now = func() time.Time { return h.clock }
	h.svc = svc
	return h
}

func (h *harness) addAccount(t *testing.T, email, plain string, verified bool) *models.Account {
	t.Helper()
	hash, err := h.hasher.Hash(plain)
	require.NoError(t, err)
	a, err := h.repos.accounts.Create(context.Background(), &models.Account{
		Email:         email,
		PasswordHash:  hash,
		DisplayName:   "Test User",
		Role:          models.RoleClient,
		EmailVerified: verified,
	})
	require.NoError(t, err)
	return a
}

func (h *harness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *harness) unusedTokens(accountID string, kind models.TokenKind) []*models.SecureToken {
	h.repos.store.mu.Lock()
	defer h.repos.store.mu.Unlock()
	var out []*models.SecureToken
	for _, tok := range h.repos.store.tokens {
		if tok.AccountID == accountID && tok.Kind == kind && !tok.Used {
			out = append(out, tok)
		}
	}
	return out
}

func (h *harness) lastIssuedToken(accountID string, kind models.TokenKind) string {
	toks := h.unusedTokens(accountID, kind)
	if len(toks) != 1 {
		return ""
	}
	return toks[0].Token
}

var ctxb = context.Background()

// --- login ---

func TestLogin_Success(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "user@example.com", "correct horse", true)

	res, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "ua/1.0")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "user@example.com", res.Account.Email)
	assert.Equal(t, int64((7 * 24 * time.Hour).Seconds()), res.ExpiresIn)

	// One session row holding the refresh token.
	sess, err := h.repos.sessions.Validate(ctxb, res.RefreshToken, h.clock)
	require.NoError(t, err)
	assert.Equal(t, "ua/1.0", sess.ClientMeta)
}

func TestLogin_UnknownEmailAndWrongPasswordLookTheSame(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "user@example.com", "correct horse", true)

	_, errUnknown := h.svc.Login(ctxb, "ghost@example.com", "whatever", "")
	_, errWrong := h.svc.Login(ctxb, "user@example.com", "battery staple", "")

	require.ErrorIs(t, errUnknown, autherr.ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, autherr.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLogin_LocksAfterFiveFailures(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "user@example.com", "correct horse", true)

	for i := 0; i < 5; i++ {
		_, err := h.svc.Login(ctxb, "user@example.com", "wrong", "")
		require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	}

	// Sixth attempt with the CORRECT password is still rejected.
	_, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.ErrorIs(t, err, autherr.ErrAccountLocked)

	var domainErr *autherr.Error
	require.ErrorAs(t, err, &domainErr)
	remaining := domainErr.Details["remaining_minutes"].(int)
	assert.Greater(t, remaining, 0)
	assert.LessOrEqual(t, remaining, 30)
}

func TestLogin_LockExpiresImplicitly(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "user@example.com", "correct horse", true)

	for i := 0; i < 5; i++ {
		_, _ = h.svc.Login(ctxb, "user@example.com", "wrong", "")
	}
	_, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.ErrorIs(t, err, autherr.ErrAccountLocked)

	h.advance(31 * time.Minute)

	res, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestLogin_SuccessResetsFailureCounter(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	for i := 0; i < 3; i++ {
		_, _ = h.svc.Login(ctxb, "user@example.com", "wrong", "")
	}
	got, err := h.repos.accounts.GetByID(ctxb, a.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.FailedLoginAttempts)

	_, err = h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.NoError(t, err)

	got, err = h.repos.accounts.GetByID(ctxb, a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.Nil(t, got.LockUntil)
}

func TestLogin_UnverifiedEmailIsBlocked(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "user@example.com", "correct horse", false)

	_, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.ErrorIs(t, err, autherr.ErrEmailNotVerified)

	var domainErr *autherr.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "user@example.com", domainErr.Details["email"])
}

func TestLogin_InfraFaultIsMasked(t *testing.T) {
	h := newHarness(t)
	h.repos.accounts.fail = errors.New("pq: connection refused")

	_, err := h.svc.Login(ctxb, "user@example.com", "pw", "")
	require.ErrorIs(t, err, autherr.ErrInternal)
	assert.NotContains(t, err.Error(), "connection refused")
}

// --- refresh ---

func TestRefreshToken_Success_NoRotation(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "user@example.com", "correct horse", true)

	login, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.NoError(t, err)

	res, err := h.svc.RefreshToken(ctxb, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	// The same refresh token keeps working: no rotation.
	_, err = h.svc.RefreshToken(ctxb, login.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshToken_GarbageToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.RefreshToken(ctxb, "not.a.jwt")
	require.ErrorIs(t, err, autherr.ErrTokenInvalid)
}

func TestRefreshToken_ValidSignatureButNoSession(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	// Mint a refresh token without opening a session.
	manager := auth.NewManager("access-secret", "refresh-secret", 15*time.Minute, 30*24*time.Hour)
	token, _, err := manager.NewRefreshToken(a)
	require.NoError(t, err)

	_, err = h.svc.RefreshToken(ctxb, token)
	require.ErrorIs(t, err, autherr.ErrRefreshFailed)
}

func TestRefreshToken_SoftDeletedAccountCleansSessions(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	login, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.NoError(t, err)

	deleted := h.clock
	h.repos.store.mu.Lock()
	h.repos.store.accounts[a.ID].DeletedAt = &deleted
	h.repos.store.mu.Unlock()

	_, err = h.svc.RefreshToken(ctxb, login.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrUserNotFound)

	// Lazy cleanup removed the session, so a second try fails earlier.
	_, err = h.repos.sessions.Validate(ctxb, login.RefreshToken, h.clock)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRefreshToken_LockedAccount(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	login, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.NoError(t, err)

	until := h.clock.Add(10 * time.Minute)
	h.repos.store.mu.Lock()
	h.repos.store.accounts[a.ID].LockUntil = &until
	h.repos.store.mu.Unlock()

	_, err = h.svc.RefreshToken(ctxb, login.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrAccountLocked)
}

// --- logout ---

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	login, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.NoError(t, err)

	res, err := h.svc.Logout(ctxb, a.ID, login.RefreshToken)
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Second logout of the same token: indistinguishable success.
	res2, err := h.svc.Logout(ctxb, a.ID, login.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, res, res2)

	_, err = h.svc.RefreshToken(ctxb, login.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrRefreshFailed)
}

// --- forgot / reset password ---

func TestForgotPassword_SameShapeWhetherEmailExists(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "user@example.com", "correct horse", true)

	known, err := h.svc.ForgotPassword(ctxb, "user@example.com")
	require.NoError(t, err)
	unknown, err := h.svc.ForgotPassword(ctxb, "ghost@example.com")
	require.NoError(t, err)

	assert.Equal(t, known, unknown)
	assert.True(t, known.Success)
}

func TestForgotPassword_NotifierFailureSwallowed(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "user@example.com", "correct horse", true)
	h.notifier.ok = false

	res, err := h.svc.ForgotPassword(ctxb, "user@example.com")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, h.notifier.resetCalls, 1)
}

func TestForgotPassword_NewTokenInvalidatesOld(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	_, err := h.svc.ForgotPassword(ctxb, "user@example.com")
	require.NoError(t, err)
	first := h.lastIssuedToken(a.ID, models.TokenKindPasswordReset)
	require.NotEmpty(t, first)

	_, err = h.svc.ForgotPassword(ctxb, "user@example.com")
	require.NoError(t, err)

	// Exactly one unused token exists, and it is not the first one.
	unused := h.unusedTokens(a.ID, models.TokenKindPasswordReset)
	require.Len(t, unused, 1)
	assert.NotEqual(t, first, unused[0].Token)

	_, err = h.svc.ResetPassword(ctxb, first, "n3w password!")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)
}

func TestForgotPassword_RetriesWhenConcurrentIssueWins(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)
	h.repos.tokens.conflicts = 1

	res, err := h.svc.ForgotPassword(ctxb, "user@example.com")
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Exactly one unused token survives the race.
	assert.Len(t, h.unusedTokens(a.ID, models.TokenKindPasswordReset), 1)
}

func TestForgotPassword_GivesUpAfterRepeatedConflicts(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)
	h.repos.tokens.conflicts = issueAttempts + 1

	_, err := h.svc.ForgotPassword(ctxb, "user@example.com")
	require.ErrorIs(t, err, autherr.ErrInternal)
	assert.Empty(t, h.unusedTokens(a.ID, models.TokenKindPasswordReset))
}

func TestResetPassword_Success(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	login, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.NoError(t, err)

	_, err = h.svc.ForgotPassword(ctxb, "user@example.com")
	require.NoError(t, err)
	token := h.lastIssuedToken(a.ID, models.TokenKindPasswordReset)

	res, err := h.svc.ResetPassword(ctxb, token, "n3w password!")
	require.NoError(t, err)
	assert.True(t, res.Success)

	// New password works, old one does not.
	_, err = h.svc.Login(ctxb, "user@example.com", "n3w password!", "")
	require.NoError(t, err)
	_, err = h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	// All sessions are gone: the pre-reset refresh token fails.
	_, err = h.svc.RefreshToken(ctxb, login.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrRefreshFailed)
}

func TestResetPassword_TokenIsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	_, err := h.svc.ForgotPassword(ctxb, "user@example.com")
	require.NoError(t, err)
	token := h.lastIssuedToken(a.ID, models.TokenKindPasswordReset)

	_, err = h.svc.ResetPassword(ctxb, token, "n3w password!")
	require.NoError(t, err)

	_, err = h.svc.ResetPassword(ctxb, token, "another one")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	_, err := h.svc.ForgotPassword(ctxb, "user@example.com")
	require.NoError(t, err)
	token := h.lastIssuedToken(a.ID, models.TokenKindPasswordReset)

	h.advance(ResetTokenTTL + time.Minute)

	_, err = h.svc.ResetPassword(ctxb, token, "n3w password!")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)
}

func TestResetPassword_UnknownToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ResetPassword(ctxb, "feedfacedeadbeef", "n3w password!")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)
}

// --- email verification ---

func TestSendEmailVerification_SameShapeWhetherEmailExists(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "user@example.com", "correct horse", false)

	known, err := h.svc.SendEmailVerification(ctxb, "user@example.com", "")
	require.NoError(t, err)
	unknown, err := h.svc.SendEmailVerification(ctxb, "ghost@example.com", "")
	require.NoError(t, err)

	assert.Equal(t, known, unknown)
}

func TestSendEmailVerification_AlreadyVerifiedDistinctMessage(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	res, err := h.svc.SendEmailVerification(ctxb, "user@example.com", "")
	require.NoError(t, err)
	assert.True(t, res.Success)

	generic, err := h.svc.SendEmailVerification(ctxb, "ghost@example.com", "")
	require.NoError(t, err)
	assert.NotEqual(t, generic.Message, res.Message)

	// No token was issued for the verified account.
	assert.Empty(t, h.unusedTokens(a.ID, models.TokenKindEmailVerification))
}

func TestVerifyEmail_EndToEnd(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", false)

	// Login is blocked until the email is verified.
	_, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.ErrorIs(t, err, autherr.ErrEmailNotVerified)

	_, err = h.svc.SendEmailVerification(ctxb, "user@example.com", "")
	require.NoError(t, err)
	token := h.lastIssuedToken(a.ID, models.TokenKindEmailVerification)
	require.NotEmpty(t, token)

	res, err := h.svc.VerifyEmail(ctxb, token)
	require.NoError(t, err)
	assert.True(t, res.Success)

	login, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "")
	require.NoError(t, err)
	assert.True(t, login.Account.EmailVerified)
}

func TestVerifyEmail_SecondUseFails(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", false)

	_, err := h.svc.SendEmailVerification(ctxb, "user@example.com", "")
	require.NoError(t, err)
	token := h.lastIssuedToken(a.ID, models.TokenKindEmailVerification)

	_, err = h.svc.VerifyEmail(ctxb, token)
	require.NoError(t, err)

	_, err = h.svc.VerifyEmail(ctxb, token)
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)
}

func TestVerifyEmail_AlreadyVerifiedAccount(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", false)

	_, err := h.svc.SendEmailVerification(ctxb, "user@example.com", "")
	require.NoError(t, err)
	token := h.lastIssuedToken(a.ID, models.TokenKindEmailVerification)

	// The account gets verified through another path first.
	require.NoError(t, h.repos.accounts.SetEmailVerified(ctxb, a.ID))

	_, err = h.svc.VerifyEmail(ctxb, token)
	require.ErrorIs(t, err, autherr.ErrAlreadySatisfied)
}

func TestVerifyEmail_LatencyFloorApplies(t *testing.T) {
	h := newHarness(t)
	h.svc.minLatency = 40 * time.Millisecond

	start := time.Now()
	_, err := h.svc.VerifyEmail(ctxb, "no-such-token")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

// --- change password ---

func TestChangePassword_WrongCurrent(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	_, err := h.svc.ChangePassword(ctxb, a.ID, "wrong", "n3w password!")
	require.ErrorIs(t, err, autherr.ErrUnauthorized)
}

func TestChangePassword_SameAsCurrent(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	_, err := h.svc.ChangePassword(ctxb, a.ID, "correct horse", "correct horse")
	require.ErrorIs(t, err, autherr.ErrSameAsCurrent)
}

func TestChangePassword_RejectsRecentlyUsed(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "password-0", true)

	// Rotate through several passwords to build history.
	current := "password-0"
	for i := 1; i <= 3; i++ {
		next := "password-" + string(rune('0'+i))
		_, err := h.svc.ChangePassword(ctxb, a.ID, current, next)
		require.NoError(t, err)
		current = next
	}

	// password-1 is in the last five historical hashes.
	_, err := h.svc.ChangePassword(ctxb, a.ID, current, "password-1")
	require.ErrorIs(t, err, autherr.ErrRecentlyUsed)

	// A password outside the history is accepted.
	_, err = h.svc.ChangePassword(ctxb, a.ID, current, "brand new one")
	require.NoError(t, err)
}

func TestChangePassword_HistoryPrunedToFive(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "password-0", true)

	current := "password-0"
	for i := 1; i <= 7; i++ {
		next := "password-" + string(rune('0'+i))
		_, err := h.svc.ChangePassword(ctxb, a.ID, current, next)
		require.NoError(t, err)
		current = next
	}

	entries, err := h.repos.history.ListRecent(ctxb, a.ID, 100)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 5)
}

func TestChangePassword_ClosesAllSessions(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	login1, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "device-1")
	require.NoError(t, err)
	login2, err := h.svc.Login(ctxb, "user@example.com", "correct horse", "device-2")
	require.NoError(t, err)

	_, err = h.svc.ChangePassword(ctxb, a.ID, "correct horse", "n3w password!")
	require.NoError(t, err)

	_, err = h.svc.RefreshToken(ctxb, login1.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrRefreshFailed)
	_, err = h.svc.RefreshToken(ctxb, login2.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrRefreshFailed)
}

func TestChangePassword_UnknownAccount(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ChangePassword(ctxb, "nope", "a", "b")
	require.ErrorIs(t, err, autherr.ErrUserNotFound)
}

func TestChangePassword_DeletedAccount(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	deleted := h.clock
	h.repos.store.mu.Lock()
	h.repos.store.accounts[a.ID].DeletedAt = &deleted
	h.repos.store.mu.Unlock()

	// A still-live access token must not let a deleted account rotate its
	// password.
	_, err := h.svc.ChangePassword(ctxb, a.ID, "correct horse", "n3w password!")
	require.ErrorIs(t, err, autherr.ErrUserNotFound)

	got, err := h.repos.accounts.GetByID(ctxb, a.ID)
	require.NoError(t, err)
	assert.True(t, h.hasher.Verify(got.PasswordHash, "correct horse"))
}

// --- profile ---

func TestGetProfile_StripsSensitiveFields(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	view, err := h.svc.GetProfile(ctxb, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, view.ID)
	assert.Equal(t, "user@example.com", view.Email)
	// PublicView has no hash or lockout fields at all; spot-check identity.
	assert.Equal(t, models.RoleClient, view.Role)
}

func TestGetProfile_DeletedAccount(t *testing.T) {
	h := newHarness(t)
	a := h.addAccount(t, "user@example.com", "correct horse", true)

	deleted := h.clock
	h.repos.store.mu.Lock()
	h.repos.store.accounts[a.ID].DeletedAt = &deleted
	h.repos.store.mu.Unlock()

	_, err := h.svc.GetProfile(ctxb, a.ID)
	require.ErrorIs(t, err, autherr.ErrUserNotFound)
}
