package httpapi

import (
	"github.com/labstack/echo/v4"

	"github.com/avickovich/taskhive/internal/logging"
	"github.com/avickovich/taskhive/internal/server/auth"
	"github.com/avickovich/taskhive/internal/server/ratelimit"
)

// RegisterRoutes wires all endpoints onto e.
//
// Unauthenticated operations live under /v1/auth; endpoints that require a
// valid access token live under /v1. The login and the two token-issuing
// resend surfaces additionally sit behind the per-IP rate limiter.
func RegisterRoutes(e *echo.Echo, h *Handler, tokens *auth.Manager, limiter *ratelimit.Limiter, logger logging.Logger) {
	e.GET("/healthz", Health)

	limited := RateLimitByIP(limiter, logger)

	g := e.Group("/v1/auth")
	g.POST("/login", h.Login, limited)
	g.POST("/refresh", h.Refresh)
	g.POST("/forgot-password", h.ForgotPassword, limited)
	g.POST("/reset-password", h.ResetPassword)
	g.POST("/send-verification", h.SendVerification, limited)
	g.POST("/verify-email", h.VerifyEmail)

	p := e.Group("/v1")
	p.Use(RequireAuth(tokens))
	p.POST("/auth/logout", h.Logout)
	p.POST("/auth/change-password", h.ChangePassword)
	p.POST("/auth/resend-verification", h.ResendVerification)
	p.GET("/profile", h.Profile)
}
