package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

// AuditRepository appends to and reads the audit log. Rows are never updated
// or deleted.
type AuditRepository struct {
	db  DBTX
	log *logger.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db DBTX, log *logger.Logger) *AuditRepository {
	return &AuditRepository{db: db, log: log}
}

// Append inserts a new audit row. Identical entries produce distinct rows.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	entry.ID = uuid.New().String()

	query := `
		INSERT INTO audit_log (id, actor_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query, entry.ID, entry.ActorID, entry.Action, entry.Detail, entry.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to append audit entry")
	}

	return nil
}

// List returns the newest entries, optionally filtered by actor
func (r *AuditRepository) List(ctx context.Context, actorID string, limit int) ([]*AuditEntry, error) {
	query := `SELECT id, actor_id, action, detail, created_at FROM audit_log`
	args := []any{}

	if actorID != "" {
		query += ` WHERE actor_id = $1`
		args = append(args, actorID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to list audit entries")
	}
	defer rows.Close()

	entries := make([]*AuditEntry, 0)
	for rows.Next() {
		e := &AuditEntry{}
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to scan audit entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to list audit entries")
	}

	return entries, nil
}
