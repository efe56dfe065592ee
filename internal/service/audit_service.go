package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditService is the append-only Session/Audit Recorder.
type AuditService struct {
	store repository.Store
	now   func() time.Time
	log   *logger.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(store repository.Store, log *logger.Logger) *AuditService {
	return &AuditService{store: store, now: time.Now, log: log}
}

// Record appends one audit entry. Calling it twice with the same arguments
// writes two rows. A zero timestamp means now.
func (s *AuditService) Record(ctx context.Context, actorID *string, action, detail string, at time.Time) (*repository.AuditEntry, error) {
	if action == "" {
		return nil, apperr.InvalidInput("action is required")
	}
	if at.IsZero() {
		at = s.now()
	}

	entry := &repository.AuditEntry{ActorID: actorID, Action: action, Detail: detail, CreatedAt: at}
	if err := s.store.Repos().Audit.Append(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("Failed to record audit entry")
		return nil, err
	}

	return entry, nil
}

// List returns the newest audit entries, optionally for one actor.
func (s *AuditService) List(ctx context.Context, actorID string, limit int) ([]*repository.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	return s.store.Repos().Audit.List(ctx, actorID, limit)
}

// appendAudit writes an entry through repos so it commits with the state
// change it describes.
func appendAudit(ctx context.Context, repos repository.Repos, actorID *string, action, detail string, at time.Time) error {
	return repos.Audit.Append(ctx, &repository.AuditEntry{
		ActorID:   actorID,
		Action:    action,
		Detail:    detail,
		CreatedAt: at,
	})
}
