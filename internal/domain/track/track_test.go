package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource_Valid(t *testing.T) {
	tests := []struct {
		name     string
		source   Source
		expected bool
	}{
		{
			name:     "direct with url",
			source:   Direct("https://cdn.example.com/a.mp3"),
			expected: true,
		},
		{
			name:     "direct without url",
			source:   Source{Kind: SourceDirect},
			expected: false,
		},
		{
			name:     "stream with ref",
			source:   Stream("abc123"),
			expected: true,
		},
		{
			name:     "stream without ref",
			source:   Source{Kind: SourceStream, URL: "https://ignored"},
			expected: false,
		},
		{
			name:     "unknown kind",
			source:   Source{Kind: SourceKind(42), URL: "x", Ref: "y"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.source.Valid())
		})
	}
}

func TestSource_NeedsResolution(t *testing.T) {
	assert.False(t, Direct("https://cdn.example.com/a.mp3").NeedsResolution())
	assert.True(t, Stream("abc").NeedsResolution())
}

func TestTrack_IsPlayable(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected bool
	}{
		{
			name:     "playable direct track",
			track:    Track{ID: "t1", Source: Direct("https://cdn.example.com/a.mp3")},
			expected: true,
		},
		{
			name:     "empty ID",
			track:    Track{Source: Direct("https://cdn.example.com/a.mp3")},
			expected: false,
		},
		{
			name:     "no source",
			track:    Track{ID: "t1"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.track.IsPlayable())
		})
	}
}

func TestTrack_DisplayName(t *testing.T) {
	assert.Equal(t, "Artist - Song", (&Track{ID: "1", Title: "Song", Artist: "Artist"}).DisplayName())
	assert.Equal(t, "Song", (&Track{ID: "1", Title: "Song"}).DisplayName())
	assert.Equal(t, "Artist", (&Track{ID: "1", Artist: "Artist"}).DisplayName())
	assert.Equal(t, "1", (&Track{ID: "1"}).DisplayName())
}

func TestIndexOf(t *testing.T) {
	queue := []Track{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}}

	assert.Equal(t, 0, IndexOf(queue, "a"), "first occurrence wins for duplicates")
	assert.Equal(t, 1, IndexOf(queue, "b"))
	assert.Equal(t, 3, IndexOf(queue, "c"))
	assert.Equal(t, -1, IndexOf(queue, "missing"))
	assert.Equal(t, -1, IndexOf(nil, "a"))
}

func TestIDs(t *testing.T) {
	assert.Equal(t, []string{}, IDs([]Track{}))
	assert.Equal(t, []string{"a", "b"}, IDs([]Track{{ID: "a"}, {ID: "b"}}))
}
