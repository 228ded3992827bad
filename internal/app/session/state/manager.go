package state

import (
	"sync"
	"time"
)

// Manager manages auth session state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	phase    Phase
	userID   string
	username string
	since    time.Time // Time of the last phase change
}

// New creates a new state manager in the logged-out phase.
func New() *Manager {
	return &Manager{
		phase: PhaseLoggedOut,
		since: time.Now(),
	}
}

// GetPhase returns the current phase.
func (m *Manager) GetPhase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// IsLoggedIn returns true if a backend session is active.
func (m *Manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase == PhaseLoggedIn
}

// SetLoggedIn records a successful login.
func (m *Manager) SetLoggedIn(userID, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseLoggedIn
	m.userID = userID
	m.username = username
	m.since = time.Now()
}

// SetLoggedOut clears the user.
func (m *Manager) SetLoggedOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseLoggedOut
	m.userID = ""
	m.username = ""
	m.since = time.Now()
}

// SetExpired marks the session expired and reports whether it was logged in.
// The user is kept so that the prompt can offer to log in again.
func (m *Manager) SetExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseLoggedIn {
		return false
	}
	m.phase = PhaseExpired
	m.since = time.Now()
	return true
}

// GetUser returns the ID and name of the current user.
func (m *Manager) GetUser() (id, name string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID, m.username
}

// Since returns the time of the last phase change.
func (m *Manager) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}
