package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

const residentColumns = `id, first_name, middle_name, last_name, suffix, birth_date, address, contact_number, email, document_status, created_at, updated_at`

const residentColumnsPrefixed = `res.id, res.first_name, res.middle_name, res.last_name, res.suffix, res.birth_date,
		       res.address, res.contact_number, res.email, res.document_status, res.created_at, res.updated_at`

// ResidentRepository reads and writes the resident registry
type ResidentRepository struct {
	db  DBTX
	log *logger.Logger
}

// NewResidentRepository creates a new resident repository
func NewResidentRepository(db DBTX, log *logger.Logger) *ResidentRepository {
	return &ResidentRepository{db: db, log: log}
}

// Create inserts a resident record
func (r *ResidentRepository) Create(ctx context.Context, resident *Resident) error {
	if resident.ID == "" {
		resident.ID = uuid.New().String()
	}
	if resident.DocumentStatus == "" {
		resident.DocumentStatus = DocumentsPending
	}

	query := `
		INSERT INTO residents (id, first_name, middle_name, last_name, suffix, birth_date,
		                       address, contact_number, email, document_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		resident.ID,
		resident.FirstName,
		resident.MiddleName,
		resident.LastName,
		resident.Suffix,
		resident.BirthDate,
		resident.Address,
		resident.ContactNumber,
		resident.Email,
		resident.DocumentStatus,
	).Scan(&resident.CreatedAt, &resident.UpdatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to create resident")
	}

	return nil
}

// GetByID retrieves a resident by ID
func (r *ResidentRepository) GetByID(ctx context.Context, id string) (*Resident, error) {
	if !validID(id) {
		return nil, apperr.Newf(apperr.ErrCodeResidentNotFound, "resident %s not found", id)
	}

	query := `SELECT ` + residentColumns + ` FROM residents WHERE id = $1`

	resident, err := scanResident(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.ErrCodeResidentNotFound, "resident %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to get resident")
	}

	return resident, nil
}

// FindByName performs an exact, case-insensitive lookup by name tuple
func (r *ResidentRepository) FindByName(ctx context.Context, firstName, lastName string, middleName *string) ([]*Resident, error) {
	query := `
		SELECT ` + residentColumns + `
		FROM residents
		WHERE lower(first_name) = lower($1)
		  AND lower(last_name) = lower($2)
		  AND ($3::text IS NULL OR lower(coalesce(middle_name, '')) = lower($3::text))
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, NormalizeName(firstName), NormalizeName(lastName), normalizeOptional(middleName))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to find residents by name")
	}
	defer rows.Close()

	residents := make([]*Resident, 0)
	for rows.Next() {
		res, err := scanResident(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to scan resident")
		}
		residents = append(residents, res)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to find residents by name")
	}

	return residents, nil
}

// SetDocumentStatus records the document verification decision
func (r *ResidentRepository) SetDocumentStatus(ctx context.Context, id string, status DocumentStatus) error {
	if !validID(id) {
		return apperr.Newf(apperr.ErrCodeResidentNotFound, "resident %s not found", id)
	}

	query := `UPDATE residents SET document_status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to set document status")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.ErrCodeResidentNotFound, "resident %s not found", id)
	}

	return nil
}

func scanResident(row pgx.Row) (*Resident, error) {
	res := &Resident{}
	err := row.Scan(
		&res.ID,
		&res.FirstName,
		&res.MiddleName,
		&res.LastName,
		&res.Suffix,
		&res.BirthDate,
		&res.Address,
		&res.ContactNumber,
		&res.Email,
		&res.DocumentStatus,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// normalizeOptional trims an optional name; blank becomes nil.
func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	n := NormalizeName(*s)
	if n == "" {
		return nil
	}
	return &n
}
