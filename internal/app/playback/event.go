package playback

import (
	"time"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Session is an immutable snapshot of the playback session.
type Session struct {
	Version       uint64        // Increases with every published change
	Track         *track.Track  // Current track (nil when idle)
	Queue         []track.Track // Current queue (copy)
	Phase         Phase         // Load sequence phase of the current track
	IsPlaying     bool          // Playback intended and not failed
	Position      time.Duration // Elapsed time in the current track
	Duration      time.Duration // Authoritative duration (valid when DurationKnown)
	DurationKnown bool          // Output has reported the duration
	Loop          bool          // Repeat the current track at its end
	Shuffle       bool          // Random forward navigation
	Liked         bool          // Current track is liked
	Err           error         // Last failure of the current track
}

// Progress returns the position as a fraction of the duration, 0 when unknown.
func (s Session) Progress() float64 {
	if !s.DurationKnown || s.Duration <= 0 {
		return 0
	}
	return float64(s.Position) / float64(s.Duration)
}

// Notice is a one-shot report that a track could not be played.
type Notice struct {
	Track track.Track
	Err   error
}
