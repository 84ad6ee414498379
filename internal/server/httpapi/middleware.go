package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avickovich/taskhive/internal/logging"
	"github.com/avickovich/taskhive/internal/server/auth"
	"github.com/avickovich/taskhive/internal/server/ratelimit"
)

// Context keys set by RequireAuth.
const (
	ctxKeyAccountID = "account_id"
	ctxKeyRole      = "role"
)

// accountID returns the authenticated account id, or "" on unauthenticated
// routes.
func accountID(c echo.Context) string {
	id, _ := c.Get(ctxKeyAccountID).(string)
	return id
}

// RequireAuth validates the Bearer access token and injects the subject and
// role claims into the request context.
func RequireAuth(tokens *auth.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims, err := tokens.ParseAccess(raw)
			if err != nil {
				if errors.Is(err, auth.ErrExpired) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(ctxKeyAccountID, claims.Subject)
			c.Set(ctxKeyRole, claims.Role)
			return next(c)
		}
	}
}

// RateLimitByIP budgets attempts per client IP on the credential-guessing
// surfaces. A down limiter backend fails open.
func RateLimitByIP(limiter *ratelimit.Limiter, logger logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			err := limiter.Allow(ctx, ratelimit.LoginKey(c.RealIP()))
			switch {
			case err == nil:
			case errors.Is(err, ratelimit.ErrLimited):
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many attempts, slow down"})
			case errors.Is(err, ratelimit.ErrUnavailable):
				logger.Warn(ctx, "rate limiter unavailable", "err", err)
			default:
				logger.Warn(ctx, "rate limiter error", "err", err)
			}
			return next(c)
		}
	}
}
