package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/repository"
)

type memoryEntry struct {
	session   verification.OAuthSession
	expiresAt time.Time
}

// MemorySessionStore is a process-local SessionStore for single-instance
// deployments and tests.
type MemorySessionStore struct {
	mu         sync.Mutex
	now        func() time.Time
	sessions   map[string]memoryEntry
	byIdentity map[verification.IdentityRef]string
}

var _ repository.SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore constructs an empty store. A nil clock uses time.Now.
func NewMemorySessionStore(now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionStore{
		now:        now,
		sessions:   make(map[string]memoryEntry),
		byIdentity: make(map[verification.IdentityRef]string),
	}
}

// SaveSession stores the session, replacing the identity's previous one.
func (m *MemorySessionStore) SaveSession(_ context.Context, session verification.OAuthSession, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("save session: ttl must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)
	if previous, ok := m.byIdentity[session.Identity]; ok && previous != session.CorrelationToken {
		delete(m.sessions, previous)
	}
	m.sessions[session.CorrelationToken] = memoryEntry{session: session, expiresAt: now.Add(ttl)}
	m.byIdentity[session.Identity] = session.CorrelationToken
	return nil
}

// ConsumeSession returns and removes the live session for token.
func (m *MemorySessionStore) ConsumeSession(_ context.Context, token string) (*verification.OAuthSession, error) {
	token = strings.TrimSpace(token)
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	m.removeLocked(token, entry.session.Identity)
	if !m.now().Before(entry.expiresAt) {
		return nil, nil
	}
	session := entry.session
	return &session, nil
}

// Len reports the number of stored sessions, expired ones included.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) removeLocked(token string, identity verification.IdentityRef) {
	delete(m.sessions, token)
	if m.byIdentity[identity] == token {
		delete(m.byIdentity, identity)
	}
}

func (m *MemorySessionStore) sweepLocked(now time.Time) {
	for token, entry := range m.sessions {
		if !now.Before(entry.expiresAt) {
			m.removeLocked(token, entry.session.Identity)
		}
	}
}
