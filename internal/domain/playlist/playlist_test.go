package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/tunedeck/internal/domain/track"
)

func TestPlaylist_TrackIDs(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected []string
	}{
		{
			name:     "empty playlist",
			tracks:   []track.Track{},
			expected: []string{},
		},
		{
			name: "single track",
			tracks: []track.Track{
				{ID: "track-1"},
			},
			expected: []string{"track-1"},
		},
		{
			name: "repeated track keeps its position",
			tracks: []track.Track{
				{ID: "track-1"},
				{ID: "track-2"},
				{ID: "track-1"},
			},
			expected: []string{"track-1", "track-2", "track-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{
				ID:     "playlist-1",
				Tracks: tt.tracks,
			}

			assert.Equal(t, tt.expected, p.TrackIDs())
		})
	}
}

func TestPlaylist_TotalDuration(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected time.Duration
	}{
		{
			name:     "empty playlist",
			tracks:   []track.Track{},
			expected: 0,
		},
		{
			name: "multiple tracks",
			tracks: []track.Track{
				{ID: "track-1", DurationHint: 2 * time.Minute},
				{ID: "track-2", DurationHint: 3*time.Minute + 30*time.Second},
			},
			expected: 5*time.Minute + 30*time.Second,
		},
		{
			name: "unknown hints count as zero",
			tracks: []track.Track{
				{ID: "track-1", DurationHint: 2 * time.Minute},
				{ID: "track-2"},
			},
			expected: 2 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{ID: "playlist-1", Name: "Test Playlist", Tracks: tt.tracks}
			assert.Equal(t, tt.expected, p.TotalDuration())
		})
	}
}

func TestPlaylist_Playable(t *testing.T) {
	p := &Playlist{
		ID:   "playlist-1",
		Name: "Mixed",
		Tracks: []track.Track{
			{ID: "track-1", Source: track.Direct("https://cdn.example.com/1.mp3")},
			{ID: "track-2"},
			{ID: "track-3", Source: track.Stream("track-3")},
		},
	}

	assert.Equal(t, []string{"track-1", "track-3"}, track.IDs(p.Playable()))
}
