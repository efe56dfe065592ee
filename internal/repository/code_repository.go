package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

// CodeRepository handles one-time code rows
type CodeRepository struct {
	db  DBTX
	log *logger.Logger
}

// NewCodeRepository creates a new code repository
func NewCodeRepository(db DBTX, log *logger.Logger) *CodeRepository {
	return &CodeRepository{db: db, log: log}
}

// Create stores a freshly issued code
func (r *CodeRepository) Create(ctx context.Context, code *OneTimeCode) error {
	if code.ID == "" {
		code.ID = uuid.New().String()
	}

	query := `
		INSERT INTO otps (id, account_id, code_hash, purpose, created_at, expires_at, is_used)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING seq
	`

	err := r.db.QueryRow(ctx, query,
		code.ID,
		code.AccountID,
		code.CodeHash,
		code.Purpose,
		code.CreatedAt,
		code.ExpiresAt,
	).Scan(&code.Seq)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to store code")
	}

	return nil
}

// FindUnused returns candidate codes issued after the last consumed one
func (r *CodeRepository) FindUnused(ctx context.Context, accountID string, purpose Purpose, codeHash string) ([]*OneTimeCode, error) {
	if !validID(accountID) {
		return []*OneTimeCode{}, nil
	}

	query := `
		SELECT id, seq, account_id, code_hash, purpose, created_at, expires_at, is_used, used_at
		FROM otps
		WHERE account_id = $1
		  AND purpose = $2
		  AND code_hash = $3
		  AND is_used = FALSE
		  AND seq > COALESCE(
		      (SELECT MAX(seq) FROM otps
		       WHERE account_id = $1 AND purpose = $2 AND is_used = TRUE),
		      0)
		ORDER BY seq DESC
	`

	rows, err := r.db.Query(ctx, query, accountID, purpose, codeHash)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to look up code")
	}
	defer rows.Close()

	codes := make([]*OneTimeCode, 0)
	for rows.Next() {
		c := &OneTimeCode{}
		if err := rows.Scan(&c.ID, &c.Seq, &c.AccountID, &c.CodeHash, &c.Purpose, &c.CreatedAt, &c.ExpiresAt, &c.IsUsed, &c.UsedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to scan code")
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to look up code")
	}

	return codes, nil
}

// MarkUsed is a compare-and-set on is_used. Under concurrent verification
// the second UPDATE waits for the first to commit and then matches no row.
func (r *CodeRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE otps SET is_used = TRUE, used_at = $2 WHERE id = $1 AND is_used = FALSE`

	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to mark code used")
	}

	return tag.RowsAffected() == 1, nil
}
