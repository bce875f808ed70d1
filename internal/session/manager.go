package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ledgerline/ledgerline/backend/session-gateway/internal/models"
	"github.com/ledgerline/ledgerline/backend/session-gateway/pkg/logger"
)

// Manager owns the Session. It keeps the in-memory copy (source of truth for
// the current request) synchronized with the persisted Store (source of truth
// across restarts) on every mutation, and is the only writer to the persisted
// store. Readers go through Load; nothing else touches persisted keys except
// the cold-start read below.
//
// Load returns a value copy and every mutator swaps in a fresh *Session, so
// readers never observe a session being written. The Profile a copy points at
// is never mutated after it is set.
type Manager struct {
	mu    sync.RWMutex
	mem   map[string]*Session
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{mem: make(map[string]*Session), store: store}
}

// Load returns a copy of the in-memory Session for sid, performing the
// cold-start read from the persisted store on first access. Only tokens are
// promoted into memory; the persisted profile snapshot stays a display-time
// fallback and is never trusted as the in-memory user (see
// ResolveCurrentUser).
func (m *Manager) Load(ctx context.Context, sid string) Session {
	m.mu.RLock()
	s, ok := m.mem[sid]
	m.mu.RUnlock()
	if ok {
		return *s
	}

	access, err := m.store.ReadToken(ctx, sid)
	if err != nil {
		logger.Warnf("session: cold-start token read failed for %s: %v", sid, err)
	}
	refresh, err := m.store.ReadRefreshToken(ctx, sid)
	if err != nil {
		logger.Warnf("session: cold-start refresh token read failed for %s: %v", sid, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// a concurrent Load may have won the race
	if s, ok := m.mem[sid]; ok {
		return *s
	}
	s = &Session{AccessToken: access, RefreshToken: refresh}
	m.mem[sid] = s
	return *s
}

// RawSnapshot returns the persisted profile snapshot bytes, or nil when
// absent or unreadable.
func (m *Manager) RawSnapshot(ctx context.Context, sid string) []byte {
	raw, err := m.store.ReadRawUser(ctx, sid)
	if err != nil {
		logger.Warnf("session: snapshot read failed for %s: %v", sid, err)
		return nil
	}
	return raw
}

// LoginSuccess records a successful login: tokens and profile are written to
// the persisted store first, then the in-memory copy is replaced.
func (m *Manager) LoginSuccess(ctx context.Context, sid, access, refresh string, user *models.Profile) error {
	if err := m.store.WriteTokens(ctx, sid, access, refresh); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := m.store.WriteRawUser(ctx, sid, raw); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}

	m.mu.Lock()
	m.mem[sid] = &Session{AccessToken: access, RefreshToken: refresh, User: user}
	m.mu.Unlock()
	return nil
}

// PopulateProfile applies the profile-fetch side effect: set the fetched
// user on the Session and persist the snapshot, but only when the in-memory
// user is still absent. Returns whether the transition was applied, so a
// second completion of the same fetch is a no-op.
func (m *Manager) PopulateProfile(ctx context.Context, sid string, user *models.Profile) (bool, error) {
	m.mu.RLock()
	s, ok := m.mem[sid]
	populated := ok && s.User != nil
	m.mu.RUnlock()
	if populated {
		return false, nil
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return false, fmt.Errorf("marshal profile: %w", err)
	}
	if err := m.store.WriteRawUser(ctx, sid, raw); err != nil {
		return false, fmt.Errorf("persist snapshot: %w", err)
	}
	// pick up tokens from the persisted store so the in-memory copy matches
	// it even when populate runs before any login this process lifetime
	access, _ := m.store.ReadToken(ctx, sid)
	refresh, _ := m.store.ReadRefreshToken(ctx, sid)

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok = m.mem[sid]
	if ok && s.User != nil {
		// lost the race; the persisted snapshot now matches a fresh profile
		// either way, so nothing to roll back
		return false, nil
	}
	// swap in a new Session rather than writing fields on the shared one,
	// so copies handed out by Load stay untouched
	ns := &Session{AccessToken: access, RefreshToken: refresh, User: user}
	if ok {
		if s.AccessToken != "" {
			ns.AccessToken = s.AccessToken
		}
		if s.RefreshToken != "" {
			ns.RefreshToken = s.RefreshToken
		}
	}
	m.mem[sid] = ns
	return true, nil
}

// RefreshTokens records a token refresh in both copies.
func (m *Manager) RefreshTokens(ctx context.Context, sid, access, refresh string) error {
	if err := m.store.WriteTokens(ctx, sid, access, refresh); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := &Session{AccessToken: access, RefreshToken: refresh}
	if s, ok := m.mem[sid]; ok {
		ns.User = s.User
	}
	m.mem[sid] = ns
	return nil
}

// Clear removes the in-memory Session, the persisted keys and the
// session-scoped values for sid.
func (m *Manager) Clear(ctx context.Context, sid string) error {
	m.mu.Lock()
	delete(m.mem, sid)
	m.mu.Unlock()

	if err := m.store.Clear(ctx, sid); err != nil {
		return fmt.Errorf("clear persisted session: %w", err)
	}
	if err := m.store.ClearScoped(ctx, sid); err != nil {
		return fmt.Errorf("clear scoped store: %w", err)
	}
	return nil
}

// Store exposes the persisted store for session-scoped reads/writes.
func (m *Manager) Store() Store { return m.store }
