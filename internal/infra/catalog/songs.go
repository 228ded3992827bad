package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedeck/internal/domain/playlist"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// songDTO is a song as the backend serves it.
type songDTO struct {
	ID         string  `json:"_id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	URL        string  `json:"url"`
	CoverImage string  `json:"coverImage"`
	Duration   float64 `json:"duration"` // Seconds
}

type songsResponse struct {
	Songs []songDTO `json:"songs"`
}

type playlistDTO struct {
	ID     string    `json:"_id"`
	Name   string    `json:"name"`
	Tracks []songDTO `json:"tracks"`
}

type playlistsResponse struct {
	Playlists []playlistDTO `json:"playlists"`
}

type streamTokenResponse struct {
	Token string `json:"token"`
}

// ListSongs returns every song in the catalog.
func (c *Client) ListSongs(ctx context.Context) ([]track.Track, error) {
	var resp songsResponse
	if err := c.do(ctx, http.MethodGet, pathSongs, nil, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to list songs")
	}
	return c.convertSongs(resp.Songs), nil
}

// Search returns songs matching query by title or artist.
func (c *Client) Search(ctx context.Context, query string) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}

	var resp songsResponse
	if err := c.do(ctx, http.MethodGet, pathSearch, url.Values{"q": {query}}, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}
	return c.convertSongs(resp.Songs), nil
}

// MyPlaylists returns the playlists of the logged-in user. Entries without
// an ID or a name are skipped.
func (c *Client) MyPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	var resp playlistsResponse
	if err := c.do(ctx, http.MethodGet, pathMyPlaylists, nil, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to list playlists")
	}

	result := make([]playlist.Playlist, 0, len(resp.Playlists))
	for _, p := range resp.Playlists {
		if p.ID == "" || p.Name == "" {
			continue
		}
		result = append(result, *c.convertPlaylist(p))
	}
	return result, nil
}

// Resolve returns a playable URL for t. Stream sources get a fresh,
// short-lived token on every call.
func (c *Client) Resolve(ctx context.Context, t track.Track) (string, error) {
	if !t.Source.NeedsResolution() {
		return t.Source.URL, nil
	}
	if t.Source.Ref == "" {
		return "", errors.Newf("track %s has no stream reference", t.ID)
	}

	var resp streamTokenResponse
	if err := c.do(ctx, http.MethodGet, pathStreamToken+t.Source.Ref, nil, nil, &resp); err != nil {
		return "", errors.Wrap(err, "failed to get stream token")
	}
	if resp.Token == "" {
		return "", errors.New("empty stream token")
	}

	u := c.baseURL.JoinPath(pathStream, t.Source.Ref)
	u.RawQuery = url.Values{"t": {resp.Token}}.Encode()
	return u.String(), nil
}

// convertSongs converts backend songs to tracks, dropping entries without an ID.
func (c *Client) convertSongs(songs []songDTO) []track.Track {
	tracks := make([]track.Track, 0, len(songs))
	for _, s := range songs {
		if s.ID == "" {
			continue
		}
		tracks = append(tracks, c.convertSong(s))
	}
	return tracks
}

func (c *Client) convertSong(s songDTO) track.Track {
	source := track.Stream(s.ID)
	if s.URL != "" && !c.preferStream {
		source = track.Direct(s.URL)
	}

	return track.Track{
		ID:           s.ID,
		Title:        s.Title,
		Artist:       s.Artist,
		Album:        s.Album,
		CoverURL:     s.CoverImage,
		DurationHint: time.Duration(s.Duration * float64(time.Second)),
		Source:       source,
	}
}
