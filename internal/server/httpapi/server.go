package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avickovich/taskhive/internal/logging"
	"github.com/avickovich/taskhive/internal/server/auth"
	"github.com/avickovich/taskhive/internal/server/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// Server owns the echo instance and its lifecycle.
type Server struct {
	address string
	logger  logging.Logger
	echo    *echo.Echo
}

func NewServer(address string, logger logging.Logger, h *Handler, tokens *auth.Manager, limiter *ratelimit.Limiter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	l := logger.With("module", "http_server")
	RegisterRoutes(e, h, tokens, limiter, l)

	return &Server{address: address, logger: l, echo: e}
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "err", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
