// Package memstore is an in-memory repository.Store for local runs and tests.
//
// Every call runs against a private copy of the data that replaces the live
// copy only when the call (or the WithTx callback) succeeds, so a failed
// transaction leaves no partial state. Calls are serialized by one mutex.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

type state struct {
	accounts  map[string]repository.Account
	residents map[string]repository.Resident
	codes     map[string]repository.OneTimeCode
	sessions  map[string]repository.Session
	audit     []repository.AuditEntry
	codeSeq   int64
}

func newState() *state {
	return &state{
		accounts:  make(map[string]repository.Account),
		residents: make(map[string]repository.Resident),
		codes:     make(map[string]repository.OneTimeCode),
		sessions:  make(map[string]repository.Session),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:  make(map[string]repository.Account, len(s.accounts)),
		residents: make(map[string]repository.Resident, len(s.residents)),
		codes:     make(map[string]repository.OneTimeCode, len(s.codes)),
		sessions:  make(map[string]repository.Session, len(s.sessions)),
		audit:     make([]repository.AuditEntry, len(s.audit)),
		codeSeq:   s.codeSeq,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.residents {
		c.residents[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	copy(c.audit, s.audit)
	return c
}

// Store is a thread-safe in-memory repository.Store.
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{data: newState(), now: time.Now}
}

// SetClock overrides the clock used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Repos returns repositories where each call is its own transaction.
func (s *Store) Repos() repository.Repos {
	return s.repos(nil)
}

// WithTx runs fn against a snapshot and commits it if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(s.repos(snapshot)); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

// AuditLen returns the number of audit rows.
func (s *Store) AuditLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.audit)
}

func (s *Store) repos(st *state) repository.Repos {
	b := binding{store: s, st: st}
	return repository.Repos{
		Accounts:  accounts{b},
		Residents: residents{b},
		Codes:     codes{b},
		Audit:     audit{b},
		Sessions:  sessions{b},
	}
}

// binding runs an operation either inside an open transaction (st != nil) or
// in a transaction of its own.
type binding struct {
	store *Store
	st    *state
}

func (b binding) do(fn func(st *state) error) error {
	if b.st != nil {
		return fn(b.st)
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	snapshot := b.store.data.clone()
	if err := fn(snapshot); err != nil {
		return err
	}
	b.store.data = snapshot
	return nil
}

// clock must only be called while the store mutex is held.
func (b binding) clock() time.Time {
	return b.store.now()
}

type accounts struct{ binding }

func (r accounts) Create(ctx context.Context, account *repository.Account) error {
	return r.do(func(st *state) error {
		for _, existing := range st.accounts {
			if existing.Username == account.Username {
				return apperr.ErrDuplicateUsername
			}
		}
		if account.ID == "" {
			account.ID = uuid.New().String()
		}
		now := r.clock()
		account.CreatedAt = now
		account.UpdatedAt = now
		st.accounts[account.ID] = *account
		return nil
	})
}

func (r accounts) GetByID(ctx context.Context, id string) (*repository.Account, error) {
	var out *repository.Account
	err := r.do(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
		}
		out = &a
		return nil
	})
	return out, err
}

func (r accounts) GetByUsername(ctx context.Context, username string) (*repository.Account, error) {
	var out *repository.Account
	err := r.do(func(st *state) error {
		for _, a := range st.accounts {
			if a.Username == username {
				a := a
				out = &a
				return nil
			}
		}
		return apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", username)
	})
	return out, err
}

func (r accounts) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.update(id, func(a *repository.Account) error {
		a.PasswordHash = passwordHash
		return nil
	})
}

func (r accounts) UpdateStatus(ctx context.Context, id string, from []repository.AccountStatus, to repository.AccountStatus) (*repository.Account, error) {
	var out *repository.Account
	err := r.update(id, func(a *repository.Account) error {
		allowed := false
		for _, s := range from {
			if a.Status == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperr.Newf(apperr.ErrCodeInvalidStatusTransition, "account %s cannot move to %s", id, to)
		}
		a.Status = to
		cp := *a
		out = &cp
		return nil
	})
	return out, err
}

func (r accounts) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(id, func(a *repository.Account) error {
		a.LastLoginAt = &at
		return nil
	})
}

func (r accounts) LinkResident(ctx context.Context, id, residentID string) error {
	return r.update(id, func(a *repository.Account) error {
		a.ResidentID = &residentID
		return nil
	})
}

func (r accounts) update(id string, fn func(a *repository.Account) error) error {
	return r.do(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return apperr.Newf(apperr.ErrCodeAccountNotFound, "account %s not found", id)
		}
		if err := fn(&a); err != nil {
			return err
		}
		a.UpdatedAt = r.clock()
		st.accounts[id] = a
		return nil
	})
}

func (r accounts) ListPendingWithResident(ctx context.Context) ([]*repository.PendingAccount, error) {
	var out []*repository.PendingAccount
	err := r.do(func(st *state) error {
		out = make([]*repository.PendingAccount, 0)
		for _, a := range sortedAccounts(st, true) {
			if a.Status != repository.StatusPending || a.ResidentID == nil {
				continue
			}
			res, ok := st.residents[*a.ResidentID]
			if !ok {
				continue
			}
			out = append(out, &repository.PendingAccount{Account: a, Resident: &res})
		}
		return nil
	})
	return out, err
}

func (r accounts) ListByResident(ctx context.Context, residentID string) ([]*repository.Account, error) {
	var out []*repository.Account
	err := r.do(func(st *state) error {
		out = make([]*repository.Account, 0)
		for _, a := range sortedAccounts(st, true) {
			if a.ResidentID != nil && *a.ResidentID == residentID {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (r accounts) List(ctx context.Context, status repository.AccountStatus, limit, offset int) ([]*repository.Account, int64, error) {
	var out []*repository.Account
	var total int64
	err := r.do(func(st *state) error {
		matched := make([]*repository.Account, 0)
		for _, a := range sortedAccounts(st, false) {
			if status == "" || a.Status == status {
				matched = append(matched, a)
			}
		}
		total = int64(len(matched))
		out = page(matched, limit, offset)
		return nil
	})
	return out, total, err
}

func sortedAccounts(st *state, ascending bool) []*repository.Account {
	list := make([]*repository.Account, 0, len(st.accounts))
	for _, a := range st.accounts {
		a := a
		list = append(list, &a)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		if ascending {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return items[offset:end]
}

type residents struct{ binding }

func (r residents) Create(ctx context.Context, resident *repository.Resident) error {
	return r.do(func(st *state) error {
		if resident.ID == "" {
			resident.ID = uuid.New().String()
		}
		if resident.DocumentStatus == "" {
			resident.DocumentStatus = repository.DocumentsPending
		}
		now := r.clock()
		resident.CreatedAt = now
		resident.UpdatedAt = now
		st.residents[resident.ID] = *resident
		return nil
	})
}

func (r residents) GetByID(ctx context.Context, id string) (*repository.Resident, error) {
	var out *repository.Resident
	err := r.do(func(st *state) error {
		res, ok := st.residents[id]
		if !ok {
			return apperr.Newf(apperr.ErrCodeResidentNotFound, "resident %s not found", id)
		}
		out = &res
		return nil
	})
	return out, err
}

func (r residents) FindByName(ctx context.Context, firstName, lastName string, middleName *string) ([]*repository.Resident, error) {
	first := strings.ToLower(repository.NormalizeName(firstName))
	last := strings.ToLower(repository.NormalizeName(lastName))
	var middle *string
	if middleName != nil {
		if m := strings.ToLower(repository.NormalizeName(*middleName)); m != "" {
			middle = &m
		}
	}

	var out []*repository.Resident
	err := r.do(func(st *state) error {
		out = make([]*repository.Resident, 0)
		for _, res := range st.residents {
			if strings.ToLower(res.FirstName) != first || strings.ToLower(res.LastName) != last {
				continue
			}
			if middle != nil {
				have := ""
				if res.MiddleName != nil {
					have = strings.ToLower(*res.MiddleName)
				}
				if have != *middle {
					continue
				}
			}
			res := res
			out = append(out, &res)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (r residents) SetDocumentStatus(ctx context.Context, id string, status repository.DocumentStatus) error {
	return r.do(func(st *state) error {
		res, ok := st.residents[id]
		if !ok {
			return apperr.Newf(apperr.ErrCodeResidentNotFound, "resident %s not found", id)
		}
		res.DocumentStatus = status
		res.UpdatedAt = r.clock()
		st.residents[id] = res
		return nil
	})
}

type codes struct{ binding }

func (r codes) Create(ctx context.Context, code *repository.OneTimeCode) error {
	return r.do(func(st *state) error {
		if code.ID == "" {
			code.ID = uuid.New().String()
		}
		code.IsUsed = false
		st.codeSeq++
		code.Seq = st.codeSeq
		st.codes[code.ID] = *code
		return nil
	})
}

func (r codes) FindUnused(ctx context.Context, accountID string, purpose repository.Purpose, codeHash string) ([]*repository.OneTimeCode, error) {
	var out []*repository.OneTimeCode
	err := r.do(func(st *state) error {
		var lastUsed int64
		for _, c := range st.codes {
			if c.AccountID == accountID && c.Purpose == purpose && c.IsUsed && c.Seq > lastUsed {
				lastUsed = c.Seq
			}
		}

		out = make([]*repository.OneTimeCode, 0)
		for _, c := range st.codes {
			if c.AccountID != accountID || c.Purpose != purpose || c.CodeHash != codeHash || c.IsUsed {
				continue
			}
			if c.Seq <= lastUsed {
				continue
			}
			c := c
			out = append(out, &c)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
		return nil
	})
	return out, err
}

func (r codes) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	flipped := false
	err := r.do(func(st *state) error {
		c, ok := st.codes[id]
		if !ok || c.IsUsed {
			return nil
		}
		c.IsUsed = true
		c.UsedAt = &at
		st.codes[id] = c
		flipped = true
		return nil
	})
	return flipped, err
}

type audit struct{ binding }

func (r audit) Append(ctx context.Context, entry *repository.AuditEntry) error {
	return r.do(func(st *state) error {
		entry.ID = uuid.New().String()
		st.audit = append(st.audit, *entry)
		return nil
	})
}

func (r audit) List(ctx context.Context, actorID string, limit int) ([]*repository.AuditEntry, error) {
	var out []*repository.AuditEntry
	err := r.do(func(st *state) error {
		out = make([]*repository.AuditEntry, 0)
		for i := len(st.audit) - 1; i >= 0; i-- {
			e := st.audit[i]
			if actorID != "" && (e.ActorID == nil || *e.ActorID != actorID) {
				continue
			}
			out = append(out, &e)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		out = page(out, limit, 0)
		return nil
	})
	return out, err
}

type sessions struct{ binding }

func (r sessions) Create(ctx context.Context, session *repository.Session, refreshToken string) error {
	return r.do(func(st *state) error {
		if session.ID == "" {
			session.ID = uuid.New().String()
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = r.clock()
		}
		session.LastActivityAt = session.CreatedAt
		hash := repository.HashToken(refreshToken)
		session.RefreshTokenHash = &hash
		st.sessions[session.ID] = *session
		return nil
	})
}

func (r sessions) GetByID(ctx context.Context, sessionID string) (*repository.Session, error) {
	var out *repository.Session
	err := r.do(func(st *state) error {
		s, ok := st.sessions[sessionID]
		if !ok {
			return apperr.NotFound("session", sessionID)
		}
		out = &s
		return nil
	})
	return out, err
}

func (r sessions) UpdateLastActivity(ctx context.Context, sessionID string) error {
	return r.do(func(st *state) error {
		if s, ok := st.sessions[sessionID]; ok {
			s.LastActivityAt = r.clock()
			st.sessions[sessionID] = s
		}
		return nil
	})
}

func (r sessions) Deactivate(ctx context.Context, sessionID string) error {
	return r.do(func(st *state) error {
		if s, ok := st.sessions[sessionID]; ok {
			s.IsActive = false
			st.sessions[sessionID] = s
		}
		return nil
	})
}

func (r sessions) DeactivateAccountSessions(ctx context.Context, accountID string) error {
	return r.do(func(st *state) error {
		for id, s := range st.sessions {
			if s.AccountID == accountID && s.IsActive {
				s.IsActive = false
				st.sessions[id] = s
			}
		}
		return nil
	})
}

func (r sessions) ValidateRefreshToken(ctx context.Context, sessionID, refreshToken string) (bool, error) {
	valid := false
	err := r.do(func(st *state) error {
		s, ok := st.sessions[sessionID]
		if !ok {
			return nil
		}
		valid = repository.RefreshTokenMatches(s.RefreshTokenHash, s.RefreshTokenExpiresAt, s.IsActive, refreshToken, r.clock())
		return nil
	})
	return valid, err
}

func (r sessions) UpdateRefreshToken(ctx context.Context, sessionID, refreshToken string, expiresAt time.Time) error {
	return r.do(func(st *state) error {
		s, ok := st.sessions[sessionID]
		if !ok || !s.IsActive {
			return apperr.NotFound("session", sessionID)
		}
		hash := repository.HashToken(refreshToken)
		s.RefreshTokenHash = &hash
		s.RefreshTokenExpiresAt = &expiresAt
		s.LastActivityAt = r.clock()
		st.sessions[sessionID] = s
		return nil
	})
}
