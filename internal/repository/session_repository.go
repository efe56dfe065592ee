package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

type SessionRepository struct {
	db  DBTX
	log *logger.Logger
}

func NewSessionRepository(db DBTX, log *logger.Logger) *SessionRepository {
	return &SessionRepository{
		db:  db,
		log: log,
	}
}

// HashToken returns the hex SHA-256 digest stored in place of a refresh token.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, session *Session, refreshToken string) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.LastActivityAt = session.CreatedAt

	refreshTokenHash := HashToken(refreshToken)
	session.RefreshTokenHash = &refreshTokenHash

	query := `
		INSERT INTO sessions (
			id, account_id, device_name, ip_address,
			created_at, expires_at, last_activity_at, is_active,
			refresh_token_hash, refresh_token_expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID, session.AccountID, session.DeviceName, session.IPAddress,
		session.CreatedAt, session.ExpiresAt, session.LastActivityAt, session.IsActive,
		session.RefreshTokenHash, session.RefreshTokenExpiresAt,
	)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to create session")
	}

	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*Session, error) {
	if !validID(sessionID) {
		return nil, apperr.NotFound("session", sessionID)
	}

	session := &Session{}

	query := `
		SELECT id, account_id, device_name, ip_address,
			   created_at, expires_at, last_activity_at, is_active,
			   refresh_token_hash, refresh_token_expires_at
		FROM sessions
		WHERE id = $1
	`

	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&session.ID, &session.AccountID, &session.DeviceName, &session.IPAddress,
		&session.CreatedAt, &session.ExpiresAt, &session.LastActivityAt, &session.IsActive,
		&session.RefreshTokenHash, &session.RefreshTokenExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("session", sessionID)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to get session")
	}

	return session, nil
}

// UpdateLastActivity updates the last activity timestamp
func (r *SessionRepository) UpdateLastActivity(ctx context.Context, sessionID string) error {
	query := `UPDATE sessions SET last_activity_at = $1 WHERE id = $2`

	_, err := r.db.Exec(ctx, query, time.Now(), sessionID)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to update last activity")
	}

	return nil
}

// Deactivate deactivates a session
func (r *SessionRepository) Deactivate(ctx context.Context, sessionID string) error {
	if !validID(sessionID) {
		return nil
	}

	query := `UPDATE sessions SET is_active = false WHERE id = $1`

	_, err := r.db.Exec(ctx, query, sessionID)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to deactivate session")
	}

	return nil
}

// DeactivateAccountSessions deactivates all sessions for an account
func (r *SessionRepository) DeactivateAccountSessions(ctx context.Context, accountID string) error {
	query := `UPDATE sessions SET is_active = false WHERE account_id = $1 AND is_active = true`

	_, err := r.db.Exec(ctx, query, accountID)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to deactivate account sessions")
	}

	return nil
}

// ValidateRefreshToken checks if a refresh token is valid for a session
func (r *SessionRepository) ValidateRefreshToken(ctx context.Context, sessionID, refreshToken string) (bool, error) {
	if !validID(sessionID) {
		return false, nil
	}

	var storedHash *string
	var expiresAt *time.Time
	var isActive bool

	query := `
		SELECT refresh_token_hash, refresh_token_expires_at, is_active
		FROM sessions
		WHERE id = $1
	`

	err := r.db.QueryRow(ctx, query, sessionID).Scan(&storedHash, &expiresAt, &isActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to validate refresh token")
	}

	return RefreshTokenMatches(storedHash, expiresAt, isActive, refreshToken, time.Now()), nil
}

// UpdateRefreshToken rotates the refresh token of an active session
func (r *SessionRepository) UpdateRefreshToken(ctx context.Context, sessionID, refreshToken string, expiresAt time.Time) error {
	if !validID(sessionID) {
		return apperr.NotFound("session", sessionID)
	}

	query := `
		UPDATE sessions
		SET refresh_token_hash = $2, refresh_token_expires_at = $3, last_activity_at = NOW()
		WHERE id = $1 AND is_active = true
	`

	tag, err := r.db.Exec(ctx, query, sessionID, HashToken(refreshToken), expiresAt)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to rotate refresh token")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("session", sessionID)
	}

	return nil
}

// RefreshTokenMatches reports whether refreshToken is valid for a session
// with the given stored state.
func RefreshTokenMatches(storedHash *string, expiresAt *time.Time, isActive bool, refreshToken string, now time.Time) bool {
	if !isActive {
		return false
	}
	if expiresAt != nil && expiresAt.Before(now) {
		return false
	}
	return storedHash != nil && *storedHash == HashToken(refreshToken)
}
