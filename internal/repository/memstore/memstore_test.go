package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestAccountsUniqueUsername(t *testing.T) {
	ctx := context.Background()
	s := New()
	repos := s.Repos()

	require.NoError(t, repos.Accounts.Create(ctx, &repository.Account{Username: "jdelacruz", Status: repository.StatusPending}))
	err := repos.Accounts.Create(ctx, &repository.Account{Username: "jdelacruz", Status: repository.StatusPending})
	assert.True(t, errors.Is(err, apperr.ErrDuplicateUsername))

	_, err = repos.Accounts.GetByUsername(ctx, "nobody")
	assert.True(t, errors.Is(err, apperr.ErrAccountNotFound))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Accounts.Create(ctx, &repository.Account{Username: "ghost"}); err != nil {
			return err
		}
		if err := r.Audit.Append(ctx, &repository.AuditEntry{Action: repository.ActionAccountCreated}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Repos().Accounts.GetByUsername(ctx, "ghost")
	assert.True(t, errors.Is(err, apperr.ErrAccountNotFound))
	assert.Equal(t, 0, s.AuditLen())
}

func TestUpdateStatusRequiresExpectedFrom(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()

	acct := &repository.Account{Username: "maria", Status: repository.StatusActive}
	require.NoError(t, repos.Accounts.Create(ctx, acct))

	_, err := repos.Accounts.UpdateStatus(ctx, acct.ID, []repository.AccountStatus{repository.StatusPending}, repository.StatusActive)
	assert.True(t, errors.Is(err, apperr.ErrInvalidStatusTransition))

	updated, err := repos.Accounts.UpdateStatus(ctx, acct.ID, []repository.AccountStatus{repository.StatusActive}, repository.StatusDeactivated)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDeactivated, updated.Status)
}

func TestFindByNameMiddleNameOptional(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()

	require.NoError(t, repos.Residents.Create(ctx, &repository.Resident{FirstName: "Juan", MiddleName: strPtr("Reyes"), LastName: "Santos"}))
	require.NoError(t, repos.Residents.Create(ctx, &repository.Resident{FirstName: "Juan", MiddleName: strPtr("Cruz"), LastName: "Santos"}))

	all, err := repos.Residents.FindByName(ctx, "juan", "SANTOS", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := repos.Residents.FindByName(ctx, "Juan", "Santos", strPtr("  cruz "))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Cruz", *one[0].MiddleName)
}

func TestCodesConsumedCutoff(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	older := &repository.OneTimeCode{AccountID: "a1", CodeHash: "h", Purpose: repository.PurposeLogin, CreatedAt: base, ExpiresAt: base.Add(10 * time.Minute)}
	newer := &repository.OneTimeCode{AccountID: "a1", CodeHash: "h2", Purpose: repository.PurposeLogin, CreatedAt: base.Add(time.Minute), ExpiresAt: base.Add(11 * time.Minute)}
	require.NoError(t, repos.Codes.Create(ctx, older))
	require.NoError(t, repos.Codes.Create(ctx, newer))

	found, err := repos.Codes.FindUnused(ctx, "a1", repository.PurposeLogin, "h")
	require.NoError(t, err)
	require.Len(t, found, 1)

	ok, err := repos.Codes.MarkUsed(ctx, newer.ID, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	found, err = repos.Codes.FindUnused(ctx, "a1", repository.PurposeLogin, "h")
	require.NoError(t, err)
	assert.Empty(t, found, "older code is superseded once a newer one is consumed")

	found, err = repos.Codes.FindUnused(ctx, "a1", repository.PurposePasswordReset, "h")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCodesCutoffByIssueOrder(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := &repository.OneTimeCode{AccountID: "a1", CodeHash: "h1", Purpose: repository.PurposeLogin, CreatedAt: at, ExpiresAt: at.Add(10 * time.Minute)}
	require.NoError(t, repos.Codes.Create(ctx, first))
	ok, err := repos.Codes.MarkUsed(ctx, first.ID, at)
	require.NoError(t, err)
	require.True(t, ok)

	second := &repository.OneTimeCode{AccountID: "a1", CodeHash: "h2", Purpose: repository.PurposeLogin, CreatedAt: at, ExpiresAt: at.Add(10 * time.Minute)}
	require.NoError(t, repos.Codes.Create(ctx, second))
	assert.Greater(t, second.Seq, first.Seq)

	found, err := repos.Codes.FindUnused(ctx, "a1", repository.PurposeLogin, "h2")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, second.ID, found[0].ID)
}

func TestMarkUsedConcurrent(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()
	now := time.Now()

	code := &repository.OneTimeCode{AccountID: "a1", CodeHash: "h", Purpose: repository.PurposeLogin, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, repos.Codes.Create(ctx, code))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repos.Codes.MarkUsed(ctx, code.ID, now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestAuditAppendNotDeduplicated(t *testing.T) {
	ctx := context.Background()
	s := New()
	repos := s.Repos()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		require.NoError(t, repos.Audit.Append(ctx, &repository.AuditEntry{ActorID: strPtr("admin"), Action: "login", Detail: "same", CreatedAt: at}))
	}
	entries, err := repos.Audit.List(ctx, "admin", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	entries, err = repos.Audit.List(ctx, "someone-else", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSessionsRefreshToken(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()
	exp := time.Now().Add(time.Hour)

	sess := &repository.Session{AccountID: "a1", ExpiresAt: exp, IsActive: true, RefreshTokenExpiresAt: &exp}
	require.NoError(t, repos.Sessions.Create(ctx, sess, "refresh-1"))

	ok, err := repos.Sessions.ValidateRefreshToken(ctx, sess.ID, "refresh-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Sessions.ValidateRefreshToken(ctx, sess.ID, "refresh-2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repos.Sessions.DeactivateAccountSessions(ctx, "a1"))
	ok, err = repos.Sessions.ValidateRefreshToken(ctx, sess.ID, "refresh-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPageBounds(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, page(items, 2, 0))
	assert.Equal(t, []int{5}, page(items, 2, 4))
	assert.Empty(t, page(items, 2, 5))
	assert.Equal(t, []int{1, 2}, page(items, 2, -40), "negative offset starts at the beginning")
	assert.Equal(t, []int{4, 5}, page(items, int(^uint(0)>>1), 3))
	assert.Equal(t, items, page(items, 0, 0))
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	repos := s.Repos()

	_, err := repos.Accounts.GetByID(ctx, "abc")
	assert.True(t, errors.Is(err, apperr.ErrAccountNotFound))
	_, err = repos.Residents.GetByID(ctx, "abc")
	assert.True(t, errors.Is(err, apperr.ErrResidentNotFound))
}
