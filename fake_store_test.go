package schoolauth

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store for the flow tests. InTx runs against
// the store itself; the flows under test never rely on rollback.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*User
	sessions map[string]*Session
	otps     map[string]*ResetOTP
	tokens   map[string]*ResetToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*User),
		sessions: make(map[string]*Session),
		otps:     make(map[string]*ResetOTP),
		tokens:   make(map[string]*ResetToken),
	}
}

func (s *fakeStore) putUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *u
	s.users[u.ID] = &clone
}

func (s *fakeStore) removeUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func (s *fakeStore) getUser(id string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		clone := *u
		return &clone
	}
	return nil
}

func (s *fakeStore) getSession(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		clone := *sess
		return &clone
	}
	return nil
}

func (s *fakeStore) activeSessionCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			n++
		}
	}
	return n
}

func (s *fakeStore) Users() UserStore             { return (*fakeUserStore)(s) }
func (s *fakeStore) Sessions() SessionStore       { return (*fakeSessionStore)(s) }
func (s *fakeStore) ResetOTPs() ResetOTPStore     { return (*fakeResetOTPStore)(s) }
func (s *fakeStore) ResetTokens() ResetTokenStore { return (*fakeResetTokenStore)(s) }

func (s *fakeStore) InTx(_ context.Context, fn func(Store) error) error {
	return fn(s)
}

// failingStore wraps fakeStore with a user store whose every call fails,
// standing in for an unreachable database backend.
type failingStore struct {
	*fakeStore
	err error
}

func (s *failingStore) Users() UserStore { return failingUserStore{err: s.err} }

type failingUserStore struct{ err error }

func (s failingUserStore) FindByEmail(context.Context, string) (*User, error) {
	return nil, s.err
}

func (s failingUserStore) FindByEmailOrPhone(context.Context, string) (*User, error) {
	return nil, s.err
}

func (s failingUserStore) FindByID(context.Context, string) (*User, error) {
	return nil, s.err
}

func (s failingUserStore) SetPassword(context.Context, string, string, time.Time) error {
	return s.err
}

type fakeUserStore fakeStore

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) FindByEmailOrPhone(_ context.Context, identifier string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == identifier || (u.Phone != "" && u.Phone == identifier) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) SetPassword(_ context.Context, userID, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.NeedPasswordChange = false
	u.LastPasswordChange = changedAt
	return nil
}

type fakeSessionStore fakeStore

func (s *fakeSessionStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sess
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *fakeSessionStore) FindByID(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		clone := *sess
		return &clone, nil
	}
	return nil, ErrSessionNotFound
}

func (s *fakeSessionStore) Rotate(_ context.Context, sessionID, currentHash, nextHash, ip, userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.RevokedAt != nil || sess.TokenHash != currentHash {
		return ErrTokenHashMismatch
	}
	sess.TokenHash = nextHash
	sess.IP = ip
	sess.UserAgent = userAgent
	return nil
}

func (s *fakeSessionStore) Revoke(_ context.Context, sessionID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.RevokedAt != nil {
		return ErrSessionRevoked
	}
	sess.RevokedAt = &at
	sess.RevokeReason = reason
	return nil
}

func (s *fakeSessionStore) RevokeAllForUser(_ context.Context, userID, reason string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			revokedAt := at
			sess.RevokedAt = &revokedAt
			sess.RevokeReason = reason
			n++
		}
	}
	return n, nil
}

type fakeResetOTPStore fakeStore

func (s *fakeResetOTPStore) Replace(_ context.Context, otp *ResetOTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.otps {
		if existing.Identifier == otp.Identifier {
			delete(s.otps, id)
		}
	}
	clone := *otp
	s.otps[otp.ID] = &clone
	return nil
}

func (s *fakeResetOTPStore) FindCurrent(_ context.Context, identifier string, now time.Time) (*ResetOTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *ResetOTP
	for _, otp := range s.otps {
		if otp.Identifier != identifier || otp.Used || !otp.ExpiresAt.After(now) {
			continue
		}
		if newest == nil || otp.CreatedAt.After(newest.CreatedAt) {
			newest = otp
		}
	}
	if newest == nil {
		return nil, ErrResetNotFound
	}
	clone := *newest
	return &clone, nil
}

func (s *fakeResetOTPStore) IncrementAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	otp, ok := s.otps[id]
	if !ok {
		return 0, ErrResetNotFound
	}
	otp.Attempts++
	return otp.Attempts, nil
}

func (s *fakeResetOTPStore) MarkUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	otp, ok := s.otps[id]
	if !ok {
		return ErrResetNotFound
	}
	otp.Used = true
	return nil
}

func (s *fakeResetOTPStore) DeleteForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, otp := range s.otps {
		if otp.UserID == userID {
			delete(s.otps, id)
		}
	}
	return nil
}

func (s *fakeResetOTPStore) PurgeStale(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, otp := range s.otps {
		if otp.Used || !otp.ExpiresAt.After(now) {
			delete(s.otps, id)
			n++
		}
	}
	return n, nil
}

type fakeResetTokenStore fakeStore

func (s *fakeResetTokenStore) Create(_ context.Context, t *ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *t
	s.tokens[t.ID] = &clone
	return nil
}

func (s *fakeResetTokenStore) FindValid(_ context.Context, tokenHash string, now time.Time) (*ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash && t.UsedAt == nil && t.ExpiresAt.After(now) {
			clone := *t
			return &clone, nil
		}
	}
	return nil, ErrResetNotFound
}

func (s *fakeResetTokenStore) Consume(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.UsedAt != nil {
		return ErrResetNotFound
	}
	usedAt := at
	t.UsedAt = &usedAt
	return nil
}

func (s *fakeResetTokenStore) PurgeStale(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tokens {
		if t.UsedAt != nil || !t.ExpiresAt.After(now) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}
