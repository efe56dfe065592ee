package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
	"github.com/pesio-ai/be-brgy-identity/pkg/password"
)

const (
	MinPasswordLength = 8
	maxUsernameLength = 64

	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage keeps (page-1)*pageSize within int32.
	maxPage = math.MaxInt32 / maxPageSize
)

// AccountService is the Credential Store: account records and passwords.
type AccountService struct {
	store  repository.Store
	params *password.Params
	now    func() time.Time
	log    *logger.Logger
}

// NewAccountService creates a new account service. nil params selects
// password.DefaultParams.
func NewAccountService(store repository.Store, params *password.Params, log *logger.Logger) *AccountService {
	return &AccountService{store: store, params: params, now: time.Now, log: log}
}

type CreateAccountRequest struct {
	ResidentID *string
	Username   string
	Password   string
	Role       repository.Role
	// Active skips the Pending state, for hall-assisted registration after
	// in-person verification.
	Active    bool
	CreatedBy *string
}

// CreateAccount hashes the password and stores a new account together with
// its audit entry.
func (s *AccountService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*repository.Account, error) {
	account, err := s.newAccount(req)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		return s.createAccountTx(ctx, r, account, req.CreatedBy)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("username", account.Username).Msg("Failed to create account")
		return nil, err
	}

	s.log.Info().
		Str("account_id", account.ID).
		Str("role", string(account.Role)).
		Str("status", string(account.Status)).
		Msg("Account created")
	return account, nil
}

// newAccount validates req and hashes the password outside any transaction.
func (s *AccountService) newAccount(req *CreateAccountRequest) (*repository.Account, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, apperr.InvalidInput("username must be between 1 and 64 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return nil, apperr.InvalidInput("username must not contain whitespace")
	}
	if req.Role == "" {
		req.Role = repository.RoleResident
	}
	if !req.Role.Valid() {
		return nil, apperr.InvalidInput(fmt.Sprintf("unknown role %q", req.Role))
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	status := repository.StatusPending
	if req.Active {
		status = repository.StatusActive
	}

	return &repository.Account{
		Username:     username,
		PasswordHash: hash,
		Role:         req.Role,
		Status:       status,
		ResidentID:   req.ResidentID,
		CreatedBy:    req.CreatedBy,
	}, nil
}

func (s *AccountService) createAccountTx(ctx context.Context, r repository.Repos, account *repository.Account, actorID *string) error {
	if account.ResidentID != nil {
		if _, err := r.Residents.GetByID(ctx, *account.ResidentID); err != nil {
			return err
		}
	}
	if err := r.Accounts.Create(ctx, account); err != nil {
		return err
	}
	return appendAudit(ctx, r, actorID, repository.ActionAccountCreated,
		fmt.Sprintf("account %s (%s) created as %s", account.Username, account.Role, account.Status), s.now())
}

func (s *AccountService) hashPassword(raw string) (string, error) {
	if utf8.RuneCountInString(raw) < MinPasswordLength {
		return "", apperr.InvalidInput(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	hash, err := password.Hash(raw, s.params)
	if err != nil {
		return "", apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to hash password")
	}
	return hash, nil
}

// VerifyPassword compares raw against the stored hash in constant time.
// Hashes in a legacy format are upgraded after a successful match.
func (s *AccountService) VerifyPassword(ctx context.Context, account *repository.Account, raw string) (bool, error) {
	valid, err := password.Verify(raw, account.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("Stored password hash is unreadable")
		return false, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "password verification failed")
	}
	if !valid {
		return false, nil
	}

	if password.NeedsRehash(account.PasswordHash) {
		if hash, err := password.Hash(raw, s.params); err == nil {
			if err := s.store.Repos().Accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
				s.log.Warn().Err(err).Str("account_id", account.ID).Msg("Failed to upgrade legacy password hash")
			} else {
				account.PasswordHash = hash
				s.log.Info().Str("account_id", account.ID).Msg("Upgraded legacy password hash")
			}
		}
	}

	return true, nil
}

// SetPassword replaces the password hash. Outstanding one-time codes are left
// untouched.
func (s *AccountService) SetPassword(ctx context.Context, accountID, raw string) error {
	hash, err := s.hashPassword(raw)
	if err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Accounts.UpdatePassword(ctx, accountID, hash); err != nil {
			return err
		}
		return appendAudit(ctx, r, &accountID, repository.ActionPasswordChanged, "password replaced", s.now())
	})
}

// GetAccount retrieves an account by ID
func (s *AccountService) GetAccount(ctx context.Context, id string) (*repository.Account, error) {
	return s.store.Repos().Accounts.GetByID(ctx, id)
}

type AccountPage struct {
	Accounts []*repository.Account
	Total    int64
	Page     int
	PageSize int
}

// ListAccounts pages through accounts, newest first, optionally by status.
func (s *AccountService) ListAccounts(ctx context.Context, status repository.AccountStatus, page, pageSize int) (*AccountPage, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.InvalidInput(fmt.Sprintf("unknown status %q", status))
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page > maxPage {
		return nil, apperr.InvalidInput(fmt.Sprintf("page must not exceed %d", maxPage))
	}

	accounts, total, err := s.store.Repos().Accounts.List(ctx, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	return &AccountPage{Accounts: accounts, Total: total, Page: page, PageSize: pageSize}, nil
}

// Deactivate moves a Pending or Active account to Deactivated and ends its
// sessions. Deactivated is terminal.
func (s *AccountService) Deactivate(ctx context.Context, accountID string, actorID *string) (*repository.Account, error) {
	var account *repository.Account
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		account, err = r.Accounts.UpdateStatus(ctx, accountID,
			[]repository.AccountStatus{repository.StatusPending, repository.StatusActive},
			repository.StatusDeactivated)
		if err != nil {
			return err
		}
		if err := r.Sessions.DeactivateAccountSessions(ctx, accountID); err != nil {
			return err
		}
		return appendAudit(ctx, r, actorID, repository.ActionAccountDeactivated,
			fmt.Sprintf("account %s deactivated", account.Username), s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", accountID).Msg("Account deactivated")
	return account, nil
}
