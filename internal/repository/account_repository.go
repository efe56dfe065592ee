package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

const accountColumns = `id, username, password_hash, role, status, resident_id, last_login, created_by, created_at, updated_at`

// AccountRepository handles account data operations
type AccountRepository struct {
	db  DBTX
	log *logger.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db DBTX, log *logger.Logger) *AccountRepository {
	return &AccountRepository{db: db, log: log}
}

// Create inserts a new account. A taken username yields DUPLICATE_USERNAME.
func (r *AccountRepository) Create(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	query := `
		INSERT INTO accounts (id, username, password_hash, role, status, resident_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.Role,
		account.Status,
		account.ResidentID,
		account.CreatedBy,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if isUniqueViolation(err) {
		return apperr.Wrap(err, apperr.ErrCodeDuplicateUsername, "username already exists")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to create account")
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	if !validID(id) {
		return nil, apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to get account")
	}

	return account, nil
}

// GetByUsername retrieves an account by username
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", username)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to get account by username")
	}

	return account, nil
}

// UpdatePassword replaces the password hash
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if !validID(id) {
		return apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
	}

	query := `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to update password")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
	}

	return nil
}

// UpdateStatus performs a conditional status transition.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, from []AccountStatus, to AccountStatus) (*Account, error) {
	if !validID(id) {
		return nil, apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
	}

	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE accounts
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, id, to, allowed))
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing account from a refused transition.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperr.Newf(apperr.ErrCodeInvalidStatusTransition, "account %s cannot move to %s", id, to)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to update account status")
	}

	return account, nil
}

// UpdateLastLogin updates the last login timestamp
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
	}

	query := `UPDATE accounts SET last_login = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to update last login")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
	}

	return nil
}

// LinkResident sets the account's resident reference
func (r *AccountRepository) LinkResident(ctx context.Context, id, residentID string) error {
	if !validID(id) {
		return apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
	}
	if !validID(residentID) {
		return apperr.Newf(apperr.ErrCodeResidentNotFound, "resident %s not found", residentID)
	}

	query := `UPDATE accounts SET resident_id = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, residentID)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to link resident")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
	}

	return nil
}

// ListPendingWithResident returns pending accounts that reference a resident,
// oldest first.
func (r *AccountRepository) ListPendingWithResident(ctx context.Context) ([]*PendingAccount, error) {
	query := `
		SELECT a.id, a.username, a.password_hash, a.role, a.status, a.resident_id, a.last_login,
		       a.created_by, a.created_at, a.updated_at,
		       ` + residentColumnsPrefixed + `
		FROM accounts a
		INNER JOIN residents res ON res.id = a.resident_id
		WHERE a.status = $1
		ORDER BY a.created_at ASC, a.id ASC
	`

	rows, err := r.db.Query(ctx, query, StatusPending)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to list pending accounts")
	}
	defer rows.Close()

	pending := make([]*PendingAccount, 0)
	for rows.Next() {
		a := &Account{}
		res := &Resident{}
		err := rows.Scan(
			&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.Status, &a.ResidentID, &a.LastLoginAt,
			&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
			&res.ID, &res.FirstName, &res.MiddleName, &res.LastName, &res.Suffix, &res.BirthDate,
			&res.Address, &res.ContactNumber, &res.Email, &res.DocumentStatus, &res.CreatedAt, &res.UpdatedAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to scan pending account")
		}
		pending = append(pending, &PendingAccount{Account: a, Resident: res})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to list pending accounts")
	}

	return pending, nil
}

// ListByResident returns every account referencing residentID
func (r *AccountRepository) ListByResident(ctx context.Context, residentID string) ([]*Account, error) {
	if !validID(residentID) {
		return []*Account{}, nil
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE resident_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, residentID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to list accounts by resident")
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// List retrieves accounts with pagination, optionally filtered by status
func (r *AccountRepository) List(ctx context.Context, status AccountStatus, limit, offset int) ([]*Account, int64, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	countQuery := `SELECT COUNT(*) FROM accounts`

	args := []any{}
	argCount := 1

	if status != "" {
		query += fmt.Sprintf(` WHERE status = $%d`, argCount)
		countQuery += fmt.Sprintf(` WHERE status = $%d`, argCount)
		args = append(args, status)
		argCount++
	}

	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argCount, argCount+1)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to count accounts")
	}

	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to list accounts")
	}
	defer rows.Close()

	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, 0, err
	}

	return accounts, total, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	a := &Account{}
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.Role,
		&a.Status,
		&a.ResidentID,
		&a.LastLoginAt,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func collectAccounts(rows pgx.Rows) ([]*Account, error) {
	accounts := make([]*Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to scan account")
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to read accounts")
	}
	return accounts, nil
}
