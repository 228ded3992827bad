package catalog

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedeck/internal/domain/playlist"
)

type playlistResponse struct {
	Playlist *playlistDTO `json:"playlist"`
}

// CreatePlaylist creates an empty playlist owned by the logged-in user.
func (c *Client) CreatePlaylist(ctx context.Context, name string) (*playlist.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("playlist name is required")
	}

	req := struct {
		Name string `json:"name"`
	}{name}

	var resp playlistResponse
	if err := c.do(ctx, http.MethodPost, pathPlaylists, nil, req, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to create playlist")
	}
	if resp.Playlist == nil || resp.Playlist.ID == "" {
		return nil, errors.New("failed to create playlist: no playlist in response")
	}
	return c.convertPlaylist(*resp.Playlist), nil
}

// AddToPlaylist appends a catalog song to a playlist and returns the
// playlist as the backend reports it after the change.
func (c *Client) AddToPlaylist(ctx context.Context, playlistID, songID string) (*playlist.Playlist, error) {
	if playlistID == "" || songID == "" {
		return nil, errors.New("playlist ID and song ID are required")
	}

	req := struct {
		SongID string `json:"songId"`
	}{songID}

	var resp playlistResponse
	if err := c.do(ctx, http.MethodPost, pathPlaylists+"/"+playlistID+"/add", nil, req, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to add song %s to playlist %s", songID, playlistID)
	}
	if resp.Playlist == nil {
		return &playlist.Playlist{ID: playlistID}, nil
	}
	return c.convertPlaylist(*resp.Playlist), nil
}

// DeletePlaylist removes a playlist of the logged-in user.
func (c *Client) DeletePlaylist(ctx context.Context, playlistID string) error {
	if playlistID == "" {
		return errors.New("playlist ID is required")
	}
	if err := c.do(ctx, http.MethodDelete, pathPlaylists+"/"+playlistID, nil, nil, nil); err != nil {
		return errors.Wrapf(err, "failed to delete playlist %s", playlistID)
	}
	return nil
}

func (c *Client) convertPlaylist(p playlistDTO) *playlist.Playlist {
	return &playlist.Playlist{
		ID:     p.ID,
		Name:   p.Name,
		Tracks: c.convertSongs(p.Tracks),
	}
}
