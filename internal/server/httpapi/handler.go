// Package httpapi exposes the auth service over HTTP. It owns request
// decoding, response encoding and the mapping of domain failures to status
// codes; all business rules live in the services package.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avickovich/taskhive/internal/server/models"
	"github.com/avickovich/taskhive/internal/server/services"
)

// dbTimeout bounds each request's service call.
const dbTimeout = 5 * time.Second

// Service is the surface of the auth orchestrator the transport needs.
type Service interface {
	Login(ctx context.Context, email, plainPassword, clientMeta string) (*services.LoginResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.RefreshResult, error)
	Logout(ctx context.Context, accountID, refreshToken string) (*services.MessageResult, error)
	ForgotPassword(ctx context.Context, email string) (*services.MessageResult, error)
	ResetPassword(ctx context.Context, token, newPassword string) (*services.MessageResult, error)
	SendEmailVerification(ctx context.Context, email, accountID string) (*services.MessageResult, error)
	VerifyEmail(ctx context.Context, token string) (*services.MessageResult, error)
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) (*services.MessageResult, error)
	GetProfile(ctx context.Context, accountID string) (*models.PublicView, error)
}

// Handler bundles the auth endpoints.
type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type emailReq struct {
	Email string `json:"email"`
}

type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type verifyEmailReq struct {
	Token string `json:"token"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func reqContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	res, err := h.svc.Login(ctx, req.Email, req.Password, c.Request().UserAgent())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.RefreshToken == "" {
		return badRequest(c, "refresh_token is required")
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	res, err := h.svc.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.RefreshToken == "" {
		return badRequest(c, "refresh_token is required")
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	res, err := h.svc.Logout(ctx, accountID(c), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return badRequest(c, "email is required")
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	res, err := h.svc.ForgotPassword(ctx, req.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Token == "" || req.NewPassword == "" {
		return badRequest(c, "token and new_password are required")
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	res, err := h.svc.ResetPassword(ctx, req.Token, req.NewPassword)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// SendVerification is the public resend endpoint; it resolves the account by
// email only.
func (h *Handler) SendVerification(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return badRequest(c, "email is required")
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	res, err := h.svc.SendEmailVerification(ctx, req.Email, "")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ResendVerification is the authenticated variant; the account comes from
// the access token, no body needed.
func (h *Handler) ResendVerification(c echo.Context) error {
	ctx, cancel := reqContext(c)
	defer cancel()

	res, err := h.svc.SendEmailVerification(ctx, "", accountID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) VerifyEmail(c echo.Context) error {
	var req verifyEmailReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Token == "" {
		return badRequest(c, "token is required")
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	res, err := h.svc.VerifyEmail(ctx, req.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return badRequest(c, "current_password and new_password are required")
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	res, err := h.svc.ChangePassword(ctx, accountID(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Profile(c echo.Context) error {
	ctx, cancel := reqContext(c)
	defer cancel()

	view, err := h.svc.GetProfile(ctx, accountID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// Health reports liveness; no dependencies are touched.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": message})
}
