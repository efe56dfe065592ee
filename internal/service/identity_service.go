package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

// IdentityService links accounts to verified resident records and drives the
// Pending -> Active transition.
type IdentityService struct {
	store    repository.Store
	accounts *AccountService
	now      func() time.Time
	log      *logger.Logger
}

// NewIdentityService creates a new identity service
func NewIdentityService(store repository.Store, accounts *AccountService, log *logger.Logger) *IdentityService {
	return &IdentityService{store: store, accounts: accounts, now: time.Now, log: log}
}

// ValidateResidentExists looks a resident up by exact name. Zero matches is
// ErrResidentNotFound, two or more is ErrAmbiguousResidentMatch.
func (s *IdentityService) ValidateResidentExists(ctx context.Context, firstName, lastName string, middleName *string) (*repository.Resident, error) {
	if repository.NormalizeName(firstName) == "" || repository.NormalizeName(lastName) == "" {
		return nil, apperr.InvalidInput("first and last name are required")
	}

	matches, err := s.store.Repos().Residents.FindByName(ctx, firstName, lastName, middleName)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, apperr.ErrResidentNotFound
	case 1:
		return matches[0], nil
	default:
		s.log.Info().Int("matches", len(matches)).Msg("Ambiguous resident name lookup")
		return nil, apperr.ErrAmbiguousResidentMatch
	}
}

// AutoApproveByName promotes the one Pending account whose linked resident's
// full name equals fullName (case-insensitive). Name equality cannot tell two
// people apart, so more than one match is refused rather than resolved.
func (s *IdentityService) AutoApproveByName(ctx context.Context, fullName string, actorID *string) (*repository.Account, error) {
	want := strings.ToLower(repository.NormalizeName(fullName))
	if want == "" {
		return nil, apperr.InvalidInput("full name is required")
	}

	var approved *repository.Account
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		pending, err := r.Accounts.ListPendingWithResident(ctx)
		if err != nil {
			return err
		}

		var matches []*repository.PendingAccount
		for _, p := range pending {
			if strings.ToLower(p.Resident.FullName()) == want {
				matches = append(matches, p)
			}
		}

		switch len(matches) {
		case 0:
			return apperr.Newf(apperr.ErrCodeAccountNotFound, "no pending account matches %q", repository.NormalizeName(fullName))
		case 1:
		default:
			return apperr.ErrAmbiguousResidentMatch
		}

		approved, err = s.activateTx(ctx, r, matches[0].Account.ID, actorID, "auto-approved by resident name")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", approved.ID).Msg("Account auto-approved by name")
	return approved, nil
}

// ApproveAccount is the admin-approved Pending -> Active transition.
func (s *IdentityService) ApproveAccount(ctx context.Context, accountID string, actorID *string) (*repository.Account, error) {
	var account *repository.Account
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		account, err = s.activateTx(ctx, r, accountID, actorID, "approved by administrator")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", accountID).Msg("Account approved")
	return account, nil
}

// LinkResident points an account at a resident. A Pending account linked to
// a document-approved resident becomes Active.
func (s *IdentityService) LinkResident(ctx context.Context, accountID, residentID string, actorID *string) (*repository.Account, error) {
	var account *repository.Account
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		resident, err := r.Residents.GetByID(ctx, residentID)
		if err != nil {
			return err
		}
		account, err = r.Accounts.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == repository.StatusDeactivated {
			return apperr.Newf(apperr.ErrCodeInvalidStatusTransition, "account %s is deactivated", accountID)
		}

		if err := r.Accounts.LinkResident(ctx, accountID, residentID); err != nil {
			return err
		}
		account.ResidentID = &residentID
		if err := appendAudit(ctx, r, actorID, repository.ActionResidentLinked,
			fmt.Sprintf("account %s linked to resident %s", account.Username, residentID), s.now()); err != nil {
			return err
		}

		if account.Status == repository.StatusPending && resident.DocumentStatus == repository.DocumentsApproved {
			account, err = s.activateTx(ctx, r, accountID, actorID, "resident documents already approved")
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", accountID).Str("resident_id", residentID).Msg("Resident linked")
	return account, nil
}

// ApproveResidentDocuments records the document-approval signal and promotes
// every Pending account linked to the resident. It returns the promoted
// accounts.
func (s *IdentityService) ApproveResidentDocuments(ctx context.Context, residentID string, actorID *string) ([]*repository.Account, error) {
	promoted := make([]*repository.Account, 0)
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Residents.SetDocumentStatus(ctx, residentID, repository.DocumentsApproved); err != nil {
			return err
		}
		if err := appendAudit(ctx, r, actorID, repository.ActionDocumentsApproved,
			fmt.Sprintf("documents of resident %s approved", residentID), s.now()); err != nil {
			return err
		}

		linked, err := r.Accounts.ListByResident(ctx, residentID)
		if err != nil {
			return err
		}
		for _, a := range linked {
			if a.Status != repository.StatusPending {
				continue
			}
			activated, err := s.activateTx(ctx, r, a.ID, actorID, "resident documents approved")
			if err != nil {
				return err
			}
			promoted = append(promoted, activated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("resident_id", residentID).Int("promoted", len(promoted)).Msg("Resident documents approved")
	return promoted, nil
}

// RegisterResident adds a resident to the registry with documents pending.
func (s *IdentityService) RegisterResident(ctx context.Context, resident *repository.Resident, actorID *string) (*repository.Resident, error) {
	resident.FirstName = repository.NormalizeName(resident.FirstName)
	resident.LastName = repository.NormalizeName(resident.LastName)
	resident.Address = strings.TrimSpace(resident.Address)
	if resident.MiddleName != nil {
		if m := repository.NormalizeName(*resident.MiddleName); m != "" {
			resident.MiddleName = &m
		} else {
			resident.MiddleName = nil
		}
	}
	if resident.FirstName == "" || resident.LastName == "" {
		return nil, apperr.InvalidInput("first and last name are required")
	}
	if resident.Address == "" {
		return nil, apperr.InvalidInput("address is required")
	}
	resident.ID = ""
	resident.DocumentStatus = repository.DocumentsPending

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Residents.Create(ctx, resident); err != nil {
			return err
		}
		return appendAudit(ctx, r, actorID, repository.ActionResidentRegistered,
			fmt.Sprintf("resident %s registered", resident.FullName()), s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("resident_id", resident.ID).Msg("Resident registered")
	return resident, nil
}

type SelfRegisterRequest struct {
	FirstName  string
	MiddleName *string
	LastName   string
	Username   string
	Password   string
}

// SelfRegister creates a Pending resident account for a person who already
// exists, unambiguously, in the registry.
func (s *IdentityService) SelfRegister(ctx context.Context, req *SelfRegisterRequest) (*repository.Account, error) {
	resident, err := s.ValidateResidentExists(ctx, req.FirstName, req.LastName, req.MiddleName)
	if err != nil {
		return nil, err
	}

	return s.accounts.CreateAccount(ctx, &CreateAccountRequest{
		ResidentID: &resident.ID,
		Username:   req.Username,
		Password:   req.Password,
		Role:       repository.RoleResident,
	})
}

func (s *IdentityService) activateTx(ctx context.Context, r repository.Repos, accountID string, actorID *string, reason string) (*repository.Account, error) {
	account, err := r.Accounts.UpdateStatus(ctx, accountID,
		[]repository.AccountStatus{repository.StatusPending}, repository.StatusActive)
	if err != nil {
		return nil, err
	}
	if err := appendAudit(ctx, r, actorID, repository.ActionAccountActivated,
		fmt.Sprintf("account %s activated: %s", account.Username, reason), s.now()); err != nil {
		return nil, err
	}
	return account, nil
}
