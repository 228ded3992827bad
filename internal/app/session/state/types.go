// Package state provides auth session state management.
package state

// Phase represents the auth session lifecycle phase.
type Phase int

const (
	PhaseLoggedOut Phase = iota // No backend session
	PhaseLoggedIn               // Session cookies are valid
	PhaseExpired                // Refresh was rejected; login required
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseLoggedOut:
		return "logged_out"
	case PhaseLoggedIn:
		return "logged_in"
	case PhaseExpired:
		return "expired"
	default:
		return "unknown"
	}
}
