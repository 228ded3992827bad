// Package track provides the Track domain entity.
package track

import "time"

// SourceKind tells how a track's media URL is obtained.
type SourceKind int

const (
	SourceDirect SourceKind = iota // URL is directly playable
	SourceStream                   // Ref must be resolved through the catalog
)

// String returns the string representation of the source kind.
func (k SourceKind) String() string {
	switch k {
	case SourceDirect:
		return "direct"
	case SourceStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Source describes where the audio of a track comes from.
type Source struct {
	Kind SourceKind
	URL  string // Direct media URL (SourceDirect)
	Ref  string // Opaque catalog identifier (SourceStream)
}

// Direct returns a source playable from url as-is.
func Direct(url string) Source {
	return Source{Kind: SourceDirect, URL: url}
}

// Stream returns a source that needs a resolution step for ref.
func Stream(ref string) Source {
	return Source{Kind: SourceStream, Ref: ref}
}

// Valid reports whether the source can be resolved to a playable URL.
func (s Source) Valid() bool {
	switch s.Kind {
	case SourceDirect:
		return s.URL != ""
	case SourceStream:
		return s.Ref != ""
	default:
		return false
	}
}

// NeedsResolution reports whether a catalog round-trip is required before loading.
func (s Source) NeedsResolution() bool {
	return s.Kind == SourceStream
}

// Track represents a playable item from the catalog.
// Tracks are values and are never mutated after construction.
type Track struct {
	ID           string        // Catalog track ID
	Title        string        // Track title
	Artist       string        // Artist name
	Album        string        // Album name (empty for singles)
	CoverURL     string        // Cover art URL (optional)
	DurationHint time.Duration // Advisory duration from the catalog (0 if unknown)
	Source       Source        // How to obtain the media
}

// IsPlayable reports whether the track can be handed to the player.
func (t *Track) IsPlayable() bool {
	return t.ID != "" && t.Source.Valid()
}

// DisplayName returns "Artist - Title", falling back to whichever is set.
func (t *Track) DisplayName() string {
	switch {
	case t.Artist != "" && t.Title != "":
		return t.Artist + " - " + t.Title
	case t.Title != "":
		return t.Title
	case t.Artist != "":
		return t.Artist
	default:
		return t.ID
	}
}

// IndexOf returns the index of the first track in queue with the given ID,
// or -1 if there is none.
func IndexOf(queue []Track, id string) int {
	for i := range queue {
		if queue[i].ID == id {
			return i
		}
	}
	return -1
}

// IDs returns the IDs of tracks in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
