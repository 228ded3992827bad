// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Playlist represents a user playlist stored by the catalog backend.
type Playlist struct {
	ID     string        // Catalog playlist ID
	Name   string        // Playlist name
	Tracks []track.Track // Tracks in playlist order
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return track.IDs(p.Tracks)
}

// TotalDuration returns the sum of the tracks' duration hints.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.DurationHint
	}
	return total
}

// Playable returns the tracks that can be handed to the player, in order.
func (p *Playlist) Playable() []track.Track {
	result := make([]track.Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if t.IsPlayable() {
			result = append(result, t)
		}
	}
	return result
}
