package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
	"github.com/pesio-ai/be-brgy-identity/pkg/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestCreateAccountAndVerifyPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	account := f.createAccount(t, "jdelacruz", "Secret123!", false)
	assert.Equal(t, repository.StatusPending, account.Status)
	assert.Equal(t, repository.RoleResident, account.Role)
	assert.NotContains(t, account.PasswordHash, "Secret123!")

	tests := []struct {
		password string
		want     bool
	}{
		{"Secret123!", true},
		{"Secret123", false},
		{"secret123!", false},
		{"Secret123! ", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			got, err := f.accounts.VerifyPassword(ctx, account, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateAccountActive(t *testing.T) {
	f := newFixture(t, nil)
	account := f.createAccount(t, "staff01", "Secret123!", true)
	assert.Equal(t, repository.StatusActive, account.Status)
}

func TestCreateAccountDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "jdelacruz", "Secret123!", false)

	_, err := f.accounts.CreateAccount(ctx, &CreateAccountRequest{Username: "jdelacruz", Password: "Another123!"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateUsername)

	// The failed insert left no audit row behind.
	entries, err := f.audit.List(ctx, "", 100)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCreateAccountValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	tests := []struct {
		name string
		req  *CreateAccountRequest
		code apperr.Code
	}{
		{"blank username", &CreateAccountRequest{Username: "  ", Password: "Secret123!"}, apperr.ErrCodeInvalidInput},
		{"username with space", &CreateAccountRequest{Username: "juan dc", Password: "Secret123!"}, apperr.ErrCodeInvalidInput},
		{"short password", &CreateAccountRequest{Username: "juan", Password: "short"}, apperr.ErrCodeInvalidInput},
		{"unknown role", &CreateAccountRequest{Username: "juan", Password: "Secret123!", Role: "mayor"}, apperr.ErrCodeInvalidInput},
		{"missing resident", &CreateAccountRequest{Username: "juan", Password: "Secret123!", ResidentID: strPtr("nope")}, apperr.ErrCodeResidentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.accounts.CreateAccount(ctx, tt.req)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func TestSetPasswordKeepsOutstandingCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	account := f.createAccount(t, "maria", "Secret123!", true)

	issued, err := f.otp.IssueCode(ctx, account.ID, repository.PurposeLogin)
	require.NoError(t, err)

	require.NoError(t, f.accounts.SetPassword(ctx, account.ID, "NewSecret456!"))

	stored, err := f.accounts.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	ok, err := f.accounts.VerifyPassword(ctx, stored, "NewSecret456!")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.accounts.VerifyPassword(ctx, stored, "Secret123!")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, f.otp.VerifyCode(ctx, account.ID, issued.Code, repository.PurposeLogin))
}

func TestVerifyPasswordUpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	account := f.createAccount(t, "legacy", "Secret123!", true)

	key := pbkdf2.Key([]byte("Secret123!"), []byte("kP9sQ2"), 1000, sha256.Size, sha256.New)
	legacy := fmt.Sprintf("pbkdf2_sha256$%d$%s$%s", 1000, "kP9sQ2", base64.StdEncoding.EncodeToString(key))
	require.NoError(t, f.store.Repos().Accounts.UpdatePassword(ctx, account.ID, legacy))

	stored, err := f.accounts.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	ok, err := f.accounts.VerifyPassword(ctx, stored, "Secret123!")
	require.NoError(t, err)
	require.True(t, ok)

	upgraded, err := f.accounts.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, password.NeedsRehash(upgraded.PasswordHash))
	ok, err = f.accounts.VerifyPassword(ctx, upgraded, "Secret123!")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	admin := f.createAccount(t, "admin", "Secret123!", true)
	account := f.createAccount(t, "maria", "Secret123!", true)

	exp := f.clock.Now().Add(time.Hour)
	session := &repository.Session{AccountID: account.ID, ExpiresAt: exp, IsActive: true, RefreshTokenExpiresAt: &exp}
	require.NoError(t, f.store.Repos().Sessions.Create(ctx, session, "refresh"))

	deactivated, err := f.accounts.Deactivate(ctx, account.ID, &admin.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDeactivated, deactivated.Status)

	stored, err := f.store.Repos().Sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	_, err = f.accounts.Deactivate(ctx, account.ID, &admin.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidStatusTransition)

	_, err = f.accounts.Deactivate(ctx, "missing", &admin.ID)
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)

	entries, err := f.audit.List(ctx, admin.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, repository.ActionAccountDeactivated, entries[0].Action)
}

func TestListAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	for i := 0; i < 5; i++ {
		f.createAccount(t, fmt.Sprintf("pending%d", i), "Secret123!", false)
		f.clock.Advance(time.Second)
	}
	f.createAccount(t, "active", "Secret123!", true)

	page, err := f.accounts.ListAccounts(ctx, repository.StatusPending, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Accounts, 2)
	assert.Equal(t, "pending4", page.Accounts[0].Username)

	page, err = f.accounts.ListAccounts(ctx, repository.StatusPending, 3, 2)
	require.NoError(t, err)
	require.Len(t, page.Accounts, 1)
	assert.Equal(t, "pending0", page.Accounts[0].Username)

	page, err = f.accounts.ListAccounts(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), page.Total)
	assert.Equal(t, defaultPageSize, page.PageSize)

	_, err = f.accounts.ListAccounts(ctx, "archived", 1, 10)
	assert.Equal(t, apperr.ErrCodeInvalidInput, apperr.CodeOf(err))
}

func TestListAccountsPageOutOfRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createAccount(t, "active", "Secret123!", true)

	_, err := f.accounts.ListAccounts(ctx, "", math.MaxInt, 20)
	assert.Equal(t, apperr.ErrCodeInvalidInput, apperr.CodeOf(err))

	page, err := f.accounts.ListAccounts(ctx, "", maxPage, maxPageSize)
	require.NoError(t, err)
	assert.Empty(t, page.Accounts)
	assert.Equal(t, int64(1), page.Total)
}
