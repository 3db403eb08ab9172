package session

import (
	"context"
	"sync"
	"time"

	"github.com/fingenius/fingenius-go/internal/model"
)

type memoryEntry struct {
	session   model.Session
	expiresAt time.Time
}

// MemoryStore is a process-local Store. Expired entries are dropped lazily on
// read and swept on write, so memory stays bounded by the live session count.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	consumed map[string]time.Time
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		consumed: make(map[string]time.Time),
		now:      time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}
	sess := e.session
	return &sess, nil
}

func (m *MemoryStore) Set(_ context.Context, id string, s *model.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep()
	m.sessions[id] = memoryEntry{session: *s, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteByUser(_ context.Context, userID, exceptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.sessions {
		if e.session.UserID == userID && id != exceptID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemoryStore) ConsumeOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep()
	if exp, ok := m.consumed[key]; ok && m.now().Before(exp) {
		return false, nil
	}
	m.consumed[key] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.consumed, key)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored, possibly expired, sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweep must be called with mu held.
func (m *MemoryStore) sweep() {
	now := m.now()
	for id, e := range m.sessions {
		if !now.Before(e.expiresAt) {
			delete(m.sessions, id)
		}
	}
	for k, exp := range m.consumed {
		if !now.Before(exp) {
			delete(m.consumed, k)
		}
	}
}
