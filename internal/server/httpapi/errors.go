package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avickovich/taskhive/internal/server/autherr"
)

// statusOf maps a domain failure kind to an HTTP status.
func statusOf(kind autherr.Kind) int {
	switch kind {
	case autherr.KindInvalidCredentials,
		autherr.KindUnauthorized,
		autherr.KindTokenInvalid,
		autherr.KindTokenExpired,
		autherr.KindRefreshFailed:
		return http.StatusUnauthorized
	case autherr.KindAccountLocked:
		return http.StatusLocked
	case autherr.KindEmailNotVerified:
		return http.StatusForbidden
	case autherr.KindUserNotFound:
		return http.StatusNotFound
	case autherr.KindInvalidOrExpiredToken,
		autherr.KindAlreadySatisfied,
		autherr.KindSameAsCurrent,
		autherr.KindRecentlyUsed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError renders a domain failure. Errors that are not tagged domain
// failures render as the generic internal error; their details never leave
// the server.
func respondError(c echo.Context, err error) error {
	domainErr, ok := autherr.AsError(err)
	if !ok {
		domainErr = autherr.Internal()
	}

	body := echo.Map{
		"error": domainErr.Message,
		"code":  string(domainErr.Kind),
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	return c.JSON(statusOf(domainErr.Kind), body)
}
