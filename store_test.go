package authcore

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store used by the manager tests. It mirrors
// the conditional-update semantics of the Postgres adapter.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*User
	byEmail  map[string]string
	sessions map[string]*Session
	resets   map[string]*PasswordResetToken

	sessionReads int
	failInsert   bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*User),
		byEmail:  make(map[string]string),
		sessions: make(map[string]*Session),
		resets:   make(map[string]*PasswordResetToken),
	}
}

func (m *memStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.PasswordHash = hash
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memStore) InsertSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert {
		return context.DeadlineExceeded
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetSessionWithEmail(_ context.Context, id string) (*Session, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionReads++
	s, ok := m.sessions[id]
	if !ok {
		return nil, "", nil
	}
	cp := *s
	u, ok := m.users[s.UserID]
	if !ok {
		return nil, "", nil
	}
	return &cp, u.Email, nil
}

func (m *memStore) RevokeSession(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != SessionActive {
		return false, nil
	}
	now := time.Now()
	s.Status = SessionRevoked
	s.RevokedAt = &now
	return true, nil
}

func (m *memStore) ActiveSessionIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	now := time.Now()
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == SessionActive && s.ExpiresAt.After(now) {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (m *memStore) RevokeSessionsByIDs(_ context.Context, userID string, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var revoked []string
	for _, id := range ids {
		s, ok := m.sessions[id]
		if !ok || s.UserID != userID || s.Status != SessionActive {
			continue
		}
		s.Status = SessionRevoked
		s.RevokedAt = &now
		revoked = append(revoked, id)
	}
	return revoked, nil
}

func (m *memStore) InsertResetToken(_ context.Context, t *PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.resets[t.Token] = &cp
	return nil
}

func (m *memStore) GetResetToken(_ context.Context, token string) (*PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[token]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) ConsumeResetToken(_ context.Context, tokenID, userID, newHash string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var record *PasswordResetToken
	for _, t := range m.resets {
		if t.ID == tokenID {
			record = t
			break
		}
	}
	if record == nil || record.UsedAt != nil {
		return nil, ErrResetTokenConsumed
	}

	now := time.Now()
	record.UsedAt = &now
	if u, ok := m.users[userID]; ok {
		u.PasswordHash = newHash
		u.UpdatedAt = now
	}

	var revoked []string
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == SessionActive {
			s.Status = SessionRevoked
			s.RevokedAt = &now
			revoked = append(revoked, s.ID)
		}
	}
	return revoked, nil
}

var _ Store = (*memStore)(nil)
