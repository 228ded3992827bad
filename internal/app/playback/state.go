// Package playback provides the playback controller: the single owner of the
// audio output, the current track, the queue and the transport state.
package playback

// Phase represents where the current track is in its load sequence.
type Phase int

const (
	PhaseIdle      Phase = iota // No track selected
	PhaseResolving              // Waiting for the catalog to issue a playable URL
	PhaseLoading                // Source assigned to the output, waiting for metadata
	PhaseReady                  // Metadata known, output paused at the start
	PhaseStarting               // Output asked to play, not yet confirmed
	PhasePlaying                // Output confirmed audible playback
	PhasePaused                 // Paused by the user, the output or the end of the queue
	PhaseFailed                 // Load or playback failed; a retry may be pending
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResolving:
		return "resolving"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseStarting:
		return "starting"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// hasSource reports whether the output holds a ready source in this phase.
func (p Phase) hasSource() bool {
	switch p {
	case PhaseReady, PhaseStarting, PhasePlaying, PhasePaused:
		return true
	default:
		return false
	}
}
