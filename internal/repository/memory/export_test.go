package memory

import (
	"sort"
	"time"

	"github.com/iliyamo/account-service/internal/model"
)

// passwordHash exposes the stored hash of an account.
func (u *UserStore) passwordHash(id uint64) (string, bool) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	a, ok := u.s.users[id]
	return a.PasswordHash, ok
}

// forUser lists the sessions of an account.
func (ss *SessionStore) forUser(userID uint64) []model.Session {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	var out []model.Session
	for _, s := range ss.s.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// expire moves a code's expiry to at.
func (rs *ResetStore) expire(token string, at time.Time) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	for id, pr := range rs.s.resets {
		if pr.Token == token {
			pr.ExpiresAt = at.UTC()
			rs.s.resets[id] = pr
		}
	}
}
