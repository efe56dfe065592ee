package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	"github.com/pesio-ai/be-brgy-identity/internal/notify"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	"github.com/pesio-ai/be-brgy-identity/internal/repository/memstore"
	jwtpkg "github.com/pesio-ai/be-brgy-identity/pkg/jwt"
	"github.com/pesio-ai/be-brgy-identity/pkg/password"
	"github.com/stretchr/testify/require"
)

// Cheap argon2 parameters keep the suite fast; Verify reads them from the hash.
var testParams = &password.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

var (
	keysOnce   sync.Once
	privateKey string
	publicKey  string
	keysErr    error
)

func testKeys(t *testing.T) (string, string) {
	t.Helper()
	keysOnce.Do(func() {
		privateKey, publicKey, keysErr = jwtpkg.GenerateKeyPair()
	})
	require.NoError(t, keysErr)
	return privateKey, publicKey
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.CodeIssued
	err    error
}

func (n *captureNotifier) CodeIssued(ctx context.Context, event notify.CodeIssued) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *captureNotifier) last() notify.CodeIssued {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

type fixture struct {
	store    *memstore.Store
	clock    *fakeClock
	notifier *captureNotifier
	accounts *AccountService
	otp      *OTPService
	identity *IdentityService
	audit    *AuditService
	auth     *AuthService
}

func newFixture(t *testing.T, limiter IssueLimiter) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Now().Truncate(time.Second)}
	store := memstore.New()
	store.SetClock(clock.Now)
	log := logger.Nop()

	priv, pub := testKeys(t)
	jwtManager, err := jwtpkg.NewManager(priv, pub, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	f := &fixture{store: store, clock: clock, notifier: &captureNotifier{}}
	f.accounts = NewAccountService(store, testParams, log)
	f.accounts.now = clock.Now
	f.otp = NewOTPService(store, DefaultCodeTTL, []byte("test-code-secret"), log)
	f.otp.now = clock.Now
	f.identity = NewIdentityService(store, f.accounts, log)
	f.identity.now = clock.Now
	f.audit = NewAuditService(store, log)
	f.audit.now = clock.Now
	f.auth = NewAuthService(store, f.accounts, f.otp, jwtManager, limiter, nil, f.notifier,
		AuthConfig{SessionDuration: time.Hour, ExposeCode: true}, log)
	f.auth.now = clock.Now
	return f
}

func (f *fixture) createAccount(t *testing.T, username, pw string, active bool) *repository.Account {
	t.Helper()
	account, err := f.accounts.CreateAccount(context.Background(), &CreateAccountRequest{
		Username: username,
		Password: pw,
		Role:     repository.RoleResident,
		Active:   active,
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) addResident(t *testing.T, first string, middle *string, last string) *repository.Resident {
	t.Helper()
	res, err := f.identity.RegisterResident(context.Background(), &repository.Resident{
		FirstName:  first,
		MiddleName: middle,
		LastName:   last,
		Address:    "Purok 3, Barangay San Isidro",
	}, nil)
	require.NoError(t, err)
	return res
}

func strPtr(s string) *string { return &s }
