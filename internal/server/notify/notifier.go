// Package notify declares the outbound notification capability consumed by
// the auth core. Rendering and transport of the actual emails live outside
// this service; the orchestrator only needs a best-effort delivery hook
// whose failures never change the caller-visible outcome.
package notify

import (
	"context"

	"github.com/avickovich/taskhive/internal/logging"
)

// Notifier delivers out-of-band links to users. Implementations report
// success with the returned bool; the auth flows swallow and log failures.
type Notifier interface {
	SendVerificationLink(ctx context.Context, email, name, url string) bool
	SendPasswordResetLink(ctx context.Context, email, name, url string) bool
}

// LogNotifier is the default Notifier: it only records that a delivery
// would have happened. Deployments plug a real mail gateway in its place.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier builds a LogNotifier writing through the given logger.
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationLink(ctx context.Context, email, name, url string) bool {
	n.logger.Info(ctx, "verification link issued", "email", email, "url", url)
	return true
}

func (n *LogNotifier) SendPasswordResetLink(ctx context.Context, email, name, url string) bool {
	n.logger.Info(ctx, "password reset link issued", "email", email, "url", url)
	return true
}
