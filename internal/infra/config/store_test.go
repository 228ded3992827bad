package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveSpotifyRefreshToken_KeepsOtherKeys(t *testing.T) {
	path := writeConfig(t, `# backend
catalog:
  base_url: https://music.example.com # staging
spotify:
  client_id: id
  client_secret: secret
  refresh_token: ""
`)

	require.NoError(t, SaveSpotifyRefreshToken(path, "r-123"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "r-123", cfg.Spotify.RefreshToken)
	assert.Equal(t, "id", cfg.Spotify.ClientID)
	assert.Equal(t, "https://music.example.com", cfg.Catalog.BaseURL)
	assert.True(t, cfg.SpotifyEnabled())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# backend")
	assert.Contains(t, string(data), "# staging")
}

func TestSaveSpotifyRefreshToken_AddsSection(t *testing.T) {
	path := writeConfig(t, "catalog:\n  prefer_stream: true\nspotify:\n")

	require.NoError(t, SaveSpotifyRefreshToken(path, "r-1"))
	require.NoError(t, SaveSpotifyRefreshToken(path, "r-2"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `refresh_token: "r-2"`)
	assert.NotContains(t, string(data), "r-1")
}

func TestSaveSpotifyRefreshToken_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, SaveSpotifyRefreshToken(path, "r-1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "spotify:\n  refresh_token: \"r-1\"\n", string(data))
}

func TestSaveSpotifyRefreshToken_Errors(t *testing.T) {
	assert.Error(t, SaveSpotifyRefreshToken(writeConfig(t, "spotify: {}\n"), ""))
	assert.Error(t, SaveSpotifyRefreshToken(writeConfig(t, "- a\n- b\n"), "r"))
	assert.Error(t, SaveSpotifyRefreshToken(writeConfig(t, "spotify: [1]\n"), "r"))
	assert.Error(t, SaveSpotifyRefreshToken(writeConfig(t, "spotify: ["), "r"))
}

func TestSpotifyAwaitingToken(t *testing.T) {
	cfg, err := Load(writeConfig(t, "spotify:\n  client_id: id\n  client_secret: secret\n"))
	require.NoError(t, err)
	assert.True(t, cfg.SpotifyAwaitingToken())
	assert.False(t, cfg.SpotifyEnabled())
}
