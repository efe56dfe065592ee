package repository

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// AccountStore persists accounts.
type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// UpdateStatus moves the account to status `to` only if its current
	// status is one of `from`.
	UpdateStatus(ctx context.Context, id string, from []AccountStatus, to AccountStatus) (*Account, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	LinkResident(ctx context.Context, id, residentID string) error
	ListPendingWithResident(ctx context.Context) ([]*PendingAccount, error)
	ListByResident(ctx context.Context, residentID string) ([]*Account, error)
	List(ctx context.Context, status AccountStatus, limit, offset int) ([]*Account, int64, error)
}

// ResidentStore is the resident registry.
type ResidentStore interface {
	Create(ctx context.Context, resident *Resident) error
	GetByID(ctx context.Context, id string) (*Resident, error)
	// FindByName matches first and last name case-insensitively; middle name
	// is only compared when non-nil.
	FindByName(ctx context.Context, firstName, lastName string, middleName *string) ([]*Resident, error)
	SetDocumentStatus(ctx context.Context, id string, status DocumentStatus) error
}

// CodeStore persists one-time codes.
type CodeStore interface {
	Create(ctx context.Context, code *OneTimeCode) error
	// FindUnused returns unused codes for (account, purpose) with the given
	// digest that were issued after the newest consumed code for that
	// purpose, newest first.
	FindUnused(ctx context.Context, accountID string, purpose Purpose, codeHash string) ([]*OneTimeCode, error)
	// MarkUsed flips is_used only if it is still false. It reports whether
	// this call performed the flip.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	List(ctx context.Context, actorID string, limit int) ([]*AuditEntry, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	Create(ctx context.Context, session *Session, refreshToken string) error
	GetByID(ctx context.Context, sessionID string) (*Session, error)
	UpdateLastActivity(ctx context.Context, sessionID string) error
	Deactivate(ctx context.Context, sessionID string) error
	DeactivateAccountSessions(ctx context.Context, accountID string) error
	ValidateRefreshToken(ctx context.Context, sessionID, refreshToken string) (bool, error)
	// UpdateRefreshToken replaces the stored refresh token digest so the
	// previous refresh token stops validating.
	UpdateRefreshToken(ctx context.Context, sessionID, refreshToken string, expiresAt time.Time) error
}

// Repos groups the stores bound to one connection or transaction.
type Repos struct {
	Accounts  AccountStore
	Residents ResidentStore
	Codes     CodeStore
	Audit     AuditStore
	Sessions  SessionStore
}

// Store hands out repositories. WithTx commits all writes made through the
// supplied Repos together, or none of them if fn returns an error.
type Store interface {
	Repos() Repos
	WithTx(ctx context.Context, fn func(Repos) error) error
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool, log *logger.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, log: log}
}

// Repos returns repositories that run each statement on the pool.
func (s *PostgresStore) Repos() Repos {
	return s.reposFor(s.pool)
}

// WithTx runs fn inside a transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Repos) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(s.reposFor(tx))
	})
}

// EnsureSchema creates tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to ensure schema")
	}
	s.log.Info().Msg("Database schema ensured")
	return nil
}

func (s *PostgresStore) reposFor(db DBTX) Repos {
	return Repos{
		Accounts:  NewAccountRepository(db, s.log),
		Residents: NewResidentRepository(db, s.log),
		Codes:     NewCodeRepository(db, s.log),
		Audit:     NewAuditRepository(db, s.log),
		Sessions:  NewSessionRepository(db, s.log),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// validID reports whether id fits a UUID column. Callers treat anything else
// as a row that does not exist instead of sending it to the database.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
