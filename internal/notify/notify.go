// Package notify hands freshly issued one-time codes to the delivery
// collaborator (email, SMS or on-screen display).
package notify

import (
	"context"
	"time"

	"github.com/pesio-ai/be-brgy-identity/internal/logger"
)

// RoutingKeyCodeIssued is the routing key of code delivery events.
const RoutingKeyCodeIssued = "otp.issued"

// CodeIssued is the payload handed to the delivery channel.
type CodeIssued struct {
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	Purpose   string    `json:"purpose"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Notifier delivers issued codes.
type Notifier interface {
	CodeIssued(ctx context.Context, event CodeIssued) error
}

// LogNotifier only logs that a code was issued. The code itself is masked.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a notifier for deployments without a broker.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) CodeIssued(ctx context.Context, event CodeIssued) error {
	n.log.Info().
		Str("account_id", event.AccountID).
		Str("purpose", event.Purpose).
		Str("code", logger.MaskCode(event.Code)).
		Time("expires_at", event.ExpiresAt).
		Msg("Code issued, no delivery channel configured")
	return nil
}
