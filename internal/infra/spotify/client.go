// Package spotify provides a Spotify catalog source. Tracks are playable
// through their 30-second preview URLs.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// IDPrefix marks track IDs that come from Spotify.
const IDPrefix = "spotify:track:"

// ErrNoPreview is returned for tracks Spotify offers no preview for.
var ErrNoPreview = errors.New("track has no preview")

// scopes are requested at authorization and on every token refresh.
var scopes = []string{spotifyauth.ScopePlaylistReadPrivate}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(scopes...),
	)

	// Get HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return newClient(spotify.New(httpClient), cfg.Market), nil
}

func newClient(client *spotify.Client, market string) *Client {
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// newWithBaseURL creates a client talking to baseURL without auth.
func newWithBaseURL(httpClient *http.Client, baseURL, market string) *Client {
	return newClient(spotify.New(httpClient, spotify.WithBaseURL(baseURL)), market)
}

// GetTrack retrieves a playable track by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractTrackID(trackID)
	if id == "" {
		return nil, errors.New("track ID is required")
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	t, ok := c.convertTrack(result)
	if !ok {
		return nil, errors.Wrapf(ErrNoPreview, "track %s", id)
	}
	return t, nil
}

// Search searches for playable tracks. Tracks without a preview are skipped.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(ctx, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	if result.Tracks == nil {
		return []track.Track{}, nil
	}
	return c.convertTracks(result.Tracks.Tracks), nil
}

// GetPlaylistTracks retrieves all playable tracks from a playlist.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistURL string) ([]track.Track, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var tracks []track.Track
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Only tracks, no episodes
			if item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			if t, ok := c.convertTrack(item.Track.Track); ok {
				tracks = append(tracks, *t)
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return tracks, nil
}

func (c *Client) convertTracks(items []spotify.FullTrack) []track.Track {
	tracks := make([]track.Track, 0, len(items))
	skipped := 0
	for i := range items {
		t, ok := c.convertTrack(&items[i])
		if !ok {
			skipped++
			continue
		}
		tracks = append(tracks, *t)
	}
	if skipped > 0 {
		zlog.Debug().Msgf("spotify: skipped tracks without preview: count=%d", skipped)
	}
	return tracks
}

// convertTrack converts a Spotify FullTrack to a domain Track.
// Returns false when the track has no preview to play.
func (c *Client) convertTrack(t *spotify.FullTrack) (*track.Track, bool) {
	if t.PreviewURL == "" {
		return nil, false
	}

	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	return &track.Track{
		ID:           IDPrefix + string(t.ID),
		Title:        t.Name,
		Artist:       strings.Join(artists, ", "),
		Album:        t.Album.Name,
		CoverURL:     albumArt,
		DurationHint: time.Duration(t.Duration) * time.Millisecond,
		Source:       track.Direct(t.PreviewURL),
	}, true
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry aborted")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}

	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL, URI or a
// prefixed track ID.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles "spotify:<kind>:ID", "https://open.spotify.com/[intl-xx/]<kind>/ID?..." and bare IDs.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if uriPrefix := "spotify:" + kind + ":"; strings.HasPrefix(input, uriPrefix) {
		return strings.TrimPrefix(input, uriPrefix)
	}

	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/"+kind+"/") {
		parts := strings.Split(input, "/"+kind+"/")
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}
