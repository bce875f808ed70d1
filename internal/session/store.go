package session

import (
	"context"
	"strings"
	"sync"
)

// Store provides the persisted copy of session state. Keys per session:
// the access token, the refresh token, and the JSON-serialized profile
// snapshot. A separate session-scoped namespace holds transient values that
// are wiped together with the session on logout.
//
// Missing values are returned as empty (never an error), matching how the
// frontend reads absent storage keys.
type Store interface {
	ReadToken(ctx context.Context, sid string) (string, error)
	ReadRefreshToken(ctx context.Context, sid string) (string, error)
	// ReadRawUser returns the persisted profile snapshot without parsing it.
	// Callers must treat the bytes as untrusted (see ResolveCurrentUser).
	ReadRawUser(ctx context.Context, sid string) ([]byte, error)

	WriteTokens(ctx context.Context, sid, access, refresh string) error
	WriteRawUser(ctx context.Context, sid string, raw []byte) error

	WriteScoped(ctx context.Context, sid, key, value string) error
	ReadScoped(ctx context.Context, sid, key string) (string, error)

	// Clear removes the token, refresh token and snapshot keys for sid.
	Clear(ctx context.Context, sid string) error
	// ClearScoped removes every session-scoped key for sid.
	ClearScoped(ctx context.Context, sid string) error
}

// MemoryStore implements Store with in-process maps. Used in unit tests and
// when no Redis host is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	kv     map[string]string
	scoped map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{kv: make(map[string]string), scoped: make(map[string]string)}
}

func (m *MemoryStore) ReadToken(ctx context.Context, sid string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kv[sid+":token"], nil
}

func (m *MemoryStore) ReadRefreshToken(ctx context.Context, sid string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kv[sid+":refreshToken"], nil
}

func (m *MemoryStore) ReadRawUser(ctx context.Context, sid string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[sid+":user"]
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (m *MemoryStore) WriteTokens(ctx context.Context, sid, access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[sid+":token"] = access
	m.kv[sid+":refreshToken"] = refresh
	return nil
}

func (m *MemoryStore) WriteRawUser(ctx context.Context, sid string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[sid+":user"] = string(raw)
	return nil
}

func (m *MemoryStore) WriteScoped(ctx context.Context, sid, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scoped[sid+":"+key] = value
	return nil
}

func (m *MemoryStore) ReadScoped(ctx context.Context, sid, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scoped[sid+":"+key], nil
}

func (m *MemoryStore) Clear(ctx context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, sid+":token")
	delete(m.kv, sid+":refreshToken")
	delete(m.kv, sid+":user")
	return nil
}

func (m *MemoryStore) ClearScoped(ctx context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.scoped {
		if strings.HasPrefix(k, sid+":") {
			delete(m.scoped, k)
		}
	}
	return nil
}
