// Package uistate keeps per-session UI-only state: panel-open flags,
// transient notifications and the user's display preferences. Only the
// display preferences survive logout.
package uistate

import "sync"

// ThemeKey is the one preference key Reset preserves.
const ThemeKey = "theme"

// Notification is a transient message queued for the frontend.
type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Store holds UI state per session ID.
type Store struct {
	mu            sync.RWMutex
	flags         map[string]map[string]bool
	prefs         map[string]map[string]string
	notifications map[string][]Notification
}

func NewStore() *Store {
	return &Store{
		flags:         make(map[string]map[string]bool),
		prefs:         make(map[string]map[string]string),
		notifications: make(map[string][]Notification),
	}
}

func (s *Store) SetFlag(sid, name string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags[sid] == nil {
		s.flags[sid] = make(map[string]bool)
	}
	s.flags[sid][name] = v
}

func (s *Store) Flag(sid, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[sid][name]
}

func (s *Store) SetPref(sid, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs[sid] == nil {
		s.prefs[sid] = make(map[string]string)
	}
	s.prefs[sid][key] = value
}

func (s *Store) Pref(sid, key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[sid][key]
}

func (s *Store) Notify(sid string, n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[sid] = append(s.notifications[sid], n)
}

// DrainNotifications returns and clears the queued notifications for sid.
func (s *Store) DrainNotifications(sid string) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notifications[sid]
	delete(s.notifications, sid)
	return out
}

// Reset clears flags and notifications for sid but keeps the theme
// preference, so a re-login lands on the theme the user chose.
func (s *Store) Reset(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, sid)
	delete(s.notifications, sid)
	if p, ok := s.prefs[sid]; ok {
		theme, hasTheme := p[ThemeKey]
		if hasTheme {
			s.prefs[sid] = map[string]string{ThemeKey: theme}
		} else {
			delete(s.prefs, sid)
		}
	}
}
