// Package session provides the auth session manager. It ties the backend
// session to the player: ending the session always stops playback.
package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/app/session/state"
	"github.com/osa030/tunedeck/internal/infra/catalog"
)

var (
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrAlreadyLoggedIn = errors.New("already logged in")
)

// Authenticator is the backend auth API.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*catalog.User, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*catalog.User, error)
}

// Player is the part of the playback controller the session controls.
type Player interface {
	Stop()
}

// Manager manages the auth session.
type Manager struct {
	mu      sync.Mutex
	loginMu sync.Mutex // Serializes Login

	auth     Authenticator
	player   Player
	stateMgr *state.Manager

	// Closed when the current session ends
	done chan struct{}
}

// NewManager creates a new session manager.
func NewManager(auth Authenticator, player Player) *Manager {
	return &Manager{
		auth:     auth,
		player:   player,
		stateMgr: state.New(),
		done:     make(chan struct{}),
	}
}

// Login authenticates against the backend. Concurrent logins are
// serialized; only the first one succeeds.
func (m *Manager) Login(ctx context.Context, username, password string) (*catalog.User, error) {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	if m.stateMgr.IsLoggedIn() {
		return nil, ErrAlreadyLoggedIn
	}

	// Remote calls run without mu: a rejected refresh calls back into Expire
	user, err := m.auth.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stateMgr.IsLoggedIn() {
		return nil, ErrAlreadyLoggedIn
	}
	m.beginLocked(user)
	return user, nil
}

// Restore resumes a session from existing cookies, if the backend accepts them.
func (m *Manager) Restore(ctx context.Context) (*catalog.User, error) {
	user, err := m.auth.Me(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to restore session")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginLocked(user)
	return user, nil
}

func (m *Manager) beginLocked(user *catalog.User) {
	m.stateMgr.SetLoggedIn(user.ID, user.Username)
	m.done = make(chan struct{})
	zlog.Info().Msgf("session: logged in: user=%s", user.Username)
}

// Logout stops playback and ends the backend session. Playback is stopped
// even when the remote logout fails.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	phase := m.stateMgr.GetPhase()
	if phase == state.PhaseLoggedOut {
		m.mu.Unlock()
		return ErrNotLoggedIn
	}
	m.player.Stop()
	m.stateMgr.SetLoggedOut()
	m.endLocked()
	m.mu.Unlock()

	// An expired session has nothing left to revoke
	if phase == state.PhaseExpired {
		return nil
	}

	if err := m.auth.Logout(ctx); err != nil {
		zlog.Warn().Err(err).Msg("session: remote logout failed")
		return errors.Wrap(err, "remote logout failed")
	}
	zlog.Info().Msg("session: logged out")
	return nil
}

// Expire ends the session after the backend rejected a refresh.
func (m *Manager) Expire(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.stateMgr.SetExpired() {
		return
	}
	m.player.Stop()
	m.endLocked()
	zlog.Warn().Err(cause).Msg("session: expired, playback stopped")
}

func (m *Manager) endLocked() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

// Phase returns the current phase.
func (m *Manager) Phase() state.Phase {
	return m.stateMgr.GetPhase()
}

// Username returns the name of the current user.
func (m *Manager) Username() string {
	_, name := m.stateMgr.GetUser()
	return name
}

// Done returns a channel closed when the current session ends.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}
