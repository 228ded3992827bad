package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://ai-music-player-backend.vercel.app", cfg.Catalog.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Catalog.Timeout())
	assert.Equal(t, 1500*time.Millisecond, cfg.Playback.RetryDelay())
	assert.Equal(t, 1, cfg.Playback.RetryLimit())
	assert.Equal(t, "speaker", cfg.Output.Type)
	assert.Equal(t, 250*time.Millisecond, cfg.Output.TickInterval())
	assert.Equal(t, int64(200<<20), cfg.Output.MaxSourceBytes())
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.False(t, cfg.SpotifyEnabled())
	assert.False(t, cfg.HasCredentials())
	assert.Equal(t, 3, cfg.Discover.TagCount)
	assert.InDelta(t, 0.4, cfg.Discover.TagWeight, 1e-9)
	assert.InDelta(t, 0.6, cfg.Discover.SimilarWeight, 1e-9)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
catalog:
  base_url: https://music.example.com
  username: mika
  password: secret
  prefer_stream: true
playback:
  retry_delay_ms: 200
  max_retries: 0
output:
  type: "null"
  settings:
    sample_rate: 22050
likes:
  path: /tmp/likes.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://music.example.com", cfg.Catalog.BaseURL)
	assert.True(t, cfg.Catalog.PreferStream)
	assert.True(t, cfg.HasCredentials())
	assert.Equal(t, 200*time.Millisecond, cfg.Playback.RetryDelay())
	assert.Equal(t, 0, cfg.Playback.RetryLimit(), "explicit zero must survive defaults")
	assert.Equal(t, "null", cfg.Output.Type)
	assert.Equal(t, 22050, cfg.Output.Settings["sample_rate"])
	assert.Equal(t, "/tmp/likes.db", cfg.Likes.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CATALOG_USERNAME", "env-user")
	t.Setenv("CATALOG_PASSWORD", "env-pass")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "token")
	t.Setenv("LASTFM_API_KEY", "lfm")

	cfg, err := Load(writeConfig(t, "catalog:\n  username: file-user\n  password: file-pass\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-user", cfg.Catalog.Username)
	assert.Equal(t, "env-pass", cfg.Catalog.Password)
	assert.True(t, cfg.SpotifyEnabled())
	assert.True(t, cfg.DiscoverEnabled())
	assert.Equal(t, "lfm", cfg.Discover.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "too many playback retries",
			content: "playback:\n  max_retries: 2\n",
			errMsg:  "MaxRetries",
		},
		{
			name:    "unknown output type",
			content: "output:\n  type: pulse\n",
			errMsg:  "Type",
		},
		{
			name:    "partial spotify credentials",
			content: "spotify:\n  client_id: abc\n",
			errMsg:  "ClientSecret",
		},
		{
			name:    "username without password",
			content: "catalog:\n  username: mika\n",
			errMsg:  "username and password",
		},
		{
			name:    "invalid market",
			content: "spotify:\n  market: JPN\n",
			errMsg:  "Market",
		},
		{
			name:    "discover weights do not sum to one",
			content: "discover:\n  tag_weight: 0.5\n  similar_weight: 0.7\n",
			errMsg:  "must sum to 1.0",
		},
		{
			name:    "malformed yaml",
			content: "catalog: [",
			errMsg:  "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
