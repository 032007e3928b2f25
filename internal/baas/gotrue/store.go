package gotrue

import (
	"sync"

	"github.com/and161185/student-portal/internal/auth"
)

// SessionStore persists the current session between calls (and, for file
// stores, between processes).
type SessionStore interface {
	// Load returns the stored session or nil.
	Load() (*auth.Session, error)
	// Save replaces the stored session.
	Save(s *auth.Session) error
	// Clear removes the stored session.
	Clear() error
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu sync.Mutex
	s  *auth.Session
}

func (m *MemoryStore) Load() (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, nil
	}
	cp := *m.s
	return &cp, nil
}

func (m *MemoryStore) Save(s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.s = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}
