// Package memory provides in-process implementations of the account,
// session and reset-code stores. All three share one lock, which is what
// makes reset-code consumption a single atomic check-and-set here.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/repository"
)

type state struct {
	mu sync.Mutex

	nextUserID    uint64
	nextSessionID uint64
	nextResetID   uint64

	users    map[uint64]model.Account
	sessions map[string]model.Session // by token hash
	resets   map[uint64]model.PasswordReset
}

// Store bundles the three stores over shared state.
type Store struct {
	Users    *UserStore
	Sessions *SessionStore
	Resets   *ResetStore
}

// New returns an empty Store.
func New() *Store {
	s := &state{
		users:    map[uint64]model.Account{},
		sessions: map[string]model.Session{},
		resets:   map[uint64]model.PasswordReset{},
	}
	return &Store{
		Users:    &UserStore{s: s},
		Sessions: &SessionStore{s: s},
		Resets:   &ResetStore{s: s},
	}
}

// UserStore keeps accounts in memory.
type UserStore struct{ s *state }

// emailTakenLocked reports whether (email, t) belongs to an account other than except.
func (s *state) emailTakenLocked(email string, t model.UserType, except uint64) bool {
	for id, a := range s.users {
		if id != except && a.Email == email && a.UserType == t {
			return true
		}
	}
	return false
}

func (u *UserStore) Create(_ context.Context, in model.NewAccount) (model.Account, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	email := model.NormalizeEmail(in.Email)
	if u.s.emailTakenLocked(email, in.UserType, 0) {
		return model.Account{}, repository.ErrEmailExists
	}
	u.s.nextUserID++
	now := time.Now().UTC()
	a := model.Account{
		ID:           u.s.nextUserID,
		Name:         in.Name,
		Email:        email,
		PasswordHash: in.PasswordHash,
		UserType:     in.UserType,
		Phone:        in.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	u.s.users[a.ID] = a
	return withoutSecrets(a), nil
}

func (u *UserStore) find(email string, t model.UserType) (model.Account, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	email = model.NormalizeEmail(email)
	for _, a := range u.s.users {
		if a.Email == email && a.UserType == t {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (u *UserStore) GetByEmailAndType(_ context.Context, email string, t model.UserType) (model.Account, error) {
	a, err := u.find(email, t)
	if err != nil {
		return model.Account{}, err
	}
	return withoutSecrets(a), nil
}

func (u *UserStore) GetByEmailWithPassword(_ context.Context, email string, t model.UserType) (model.Account, error) {
	a, err := u.find(email, t)
	if err != nil {
		return model.Account{}, err
	}
	a.EmailVerificationToken = nil
	return a, nil
}

func (u *UserStore) GetByID(_ context.Context, id uint64) (model.Account, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	a, ok := u.s.users[id]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return withoutSecrets(a), nil
}

func (u *UserStore) List(_ context.Context) ([]model.Account, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	out := make([]model.Account, 0, len(u.s.users))
	for _, a := range u.s.users {
		out = append(out, withoutSecrets(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (u *UserStore) Update(_ context.Context, id uint64, upd model.AccountUpdate) (model.Account, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	a, ok := u.s.users[id]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	upd.Apply(&a)
	a.Email = model.NormalizeEmail(a.Email)
	if u.s.emailTakenLocked(a.Email, a.UserType, id) {
		return model.Account{}, repository.ErrEmailExists
	}
	a.UpdatedAt = time.Now().UTC()
	u.s.users[id] = a
	return withoutSecrets(a), nil
}

// Delete removes the account along with its sessions and reset codes.
func (u *UserStore) Delete(_ context.Context, id uint64) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(u.s.users, id)
	for h, sess := range u.s.sessions {
		if sess.UserID == id {
			delete(u.s.sessions, h)
		}
	}
	for rid, pr := range u.s.resets {
		if pr.UserID == id {
			delete(u.s.resets, rid)
		}
	}
	return nil
}

func withoutSecrets(a model.Account) model.Account {
	a.PasswordHash = ""
	a.EmailVerificationToken = nil
	return a
}

// SessionStore keeps refresh-token sessions in memory.
type SessionStore struct{ s *state }

func (ss *SessionStore) Create(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	ss.s.nextSessionID++
	ss.s.sessions[tokenHash] = model.Session{
		ID:        ss.s.nextSessionID,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (ss *SessionStore) GetByTokenHash(_ context.Context, tokenHash string) (model.Session, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	s, ok := ss.s.sessions[tokenHash]
	if !ok {
		return model.Session{}, repository.ErrNotFound
	}
	return s, nil
}

func (ss *SessionStore) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	if _, ok := ss.s.sessions[tokenHash]; !ok {
		return repository.ErrNotFound
	}
	delete(ss.s.sessions, tokenHash)
	return nil
}

func (ss *SessionStore) DeleteAllForUser(_ context.Context, userID uint64) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	for h, s := range ss.s.sessions {
		if s.UserID == userID {
			delete(ss.s.sessions, h)
		}
	}
	return nil
}

// ResetStore keeps reset codes in memory.
type ResetStore struct{ s *state }

func (rs *ResetStore) Create(_ context.Context, userID uint64, token string, exp, now time.Time) (model.PasswordReset, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	for id, pr := range rs.s.resets {
		if pr.Token != token {
			continue
		}
		if pr.Used() || pr.Expired(now) {
			delete(rs.s.resets, id)
			continue
		}
		return model.PasswordReset{}, repository.ErrDuplicateCode
	}
	rs.s.nextResetID++
	pr := model.PasswordReset{
		ID:        rs.s.nextResetID,
		UserID:    userID,
		Token:     token,
		ExpiresAt: exp.UTC(),
		CreatedAt: now.UTC(),
	}
	rs.s.resets[pr.ID] = pr
	return pr, nil
}

func (rs *ResetStore) GetByToken(_ context.Context, token string) (model.PasswordReset, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	for _, pr := range rs.s.resets {
		if pr.Token == token {
			return pr, nil
		}
	}
	return model.PasswordReset{}, repository.ErrNotFound
}

func (rs *ResetStore) Consume(_ context.Context, resetID, userID uint64, passwordHash string, now time.Time) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	pr, ok := rs.s.resets[resetID]
	switch {
	case !ok:
		return repository.ErrNotFound
	case pr.Used():
		return repository.ErrTokenUsed
	case pr.Expired(now):
		return repository.ErrTokenExpired
	}
	a, ok := rs.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now = now.UTC()
	a.PasswordHash = passwordHash
	a.UpdatedAt = now
	rs.s.users[userID] = a
	pr.UsedAt = &now
	rs.s.resets[resetID] = pr
	return nil
}
