// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog"`
	Playback PlaybackConfig `yaml:"playback"`
	Output   OutputConfig   `yaml:"output"`
	Likes    LikesConfig    `yaml:"likes"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Discover DiscoverConfig `yaml:"discover"`
}

// CatalogConfig represents the music backend configuration.
type CatalogConfig struct {
	BaseURL      string `yaml:"base_url" default:"https://ai-music-player-backend.vercel.app" validate:"required,url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PreferStream bool   `yaml:"prefer_stream"`
	TimeoutSec   int    `yaml:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
	MaxRetries   int    `yaml:"max_retries" default:"3" validate:"gte=1,lte=10"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	RetryDelayMs int  `yaml:"retry_delay_ms" default:"1500" validate:"gte=0,lte=60000"`
	MaxRetries   *int `yaml:"max_retries" default:"1" validate:"required,gte=0,lte=1"`
}

// OutputConfig represents audio output configuration.
type OutputConfig struct {
	Type        string         `yaml:"type" default:"speaker" validate:"oneof=speaker null"`
	TickMs      int            `yaml:"tick_ms" default:"250" validate:"gte=10,lte=5000"`
	MaxSourceMB int            `yaml:"max_source_mb" default:"200" validate:"gte=1,lte=4096"`
	Settings    map[string]any `yaml:"settings,omitempty"`
}

// LikesConfig represents liked-track storage configuration.
type LikesConfig struct {
	Path string `yaml:"path"` // Empty selects the XDG data directory
}

// SpotifyConfig represents Spotify API configuration.
// Spotify is optional: leave all credentials empty to disable it. The refresh
// token is obtained with tunedeck-auth once the client credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret RefreshToken"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID RefreshToken"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// DiscoverConfig represents Last.fm based discovery configuration.
// Discovery is enabled when an API key is set.
type DiscoverConfig struct {
	APIKey        string  `yaml:"api_key"`
	TagCount      int     `yaml:"tag_count" default:"3" validate:"gte=1,lte=10"`
	TagWeight     float64 `yaml:"tag_weight" default:"0.4" validate:"gte=0,lte=1"`
	SimilarWeight float64 `yaml:"similar_weight" default:"0.6" validate:"gte=0,lte=1"`
}

// Load loads configuration from a YAML file. An empty path yields the defaults.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("CATALOG_BASE_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv("CATALOG_USERNAME"); v != "" {
		c.Catalog.Username = v
	}
	if v := os.Getenv("CATALOG_PASSWORD"); v != "" {
		c.Catalog.Password = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.Discover.APIKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if (c.Catalog.Username == "") != (c.Catalog.Password == "") {
		return errors.New("catalog username and password must be set together")
	}

	if w := c.Discover.TagWeight + c.Discover.SimilarWeight; w < 0.999 || w > 1.001 {
		return errors.New("discover tag_weight and similar_weight must sum to 1.0")
	}

	return nil
}

// SpotifyAwaitingToken reports whether client credentials are set but no
// refresh token has been obtained yet.
func (c *Config) SpotifyAwaitingToken() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != "" && c.Spotify.RefreshToken == ""
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != "" && c.Spotify.RefreshToken != ""
}

// DiscoverEnabled reports whether a Last.fm API key is configured.
func (c *Config) DiscoverEnabled() bool {
	return c.Discover.APIKey != ""
}

// HasCredentials reports whether catalog credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.Catalog.Username != "" && c.Catalog.Password != ""
}

// RetryDelay returns the delay before the automatic reload of a failed track.
func (c *PlaybackConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// RetryLimit returns the number of automatic reloads per track.
func (c *PlaybackConfig) RetryLimit() int {
	if c.MaxRetries == nil {
		return 1
	}
	return *c.MaxRetries
}

// Timeout returns the HTTP timeout for catalog requests.
func (c *CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// TickInterval returns the interval between position updates.
func (c *OutputConfig) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// MaxSourceBytes returns the largest media file the output accepts.
func (c *OutputConfig) MaxSourceBytes() int64 {
	return int64(c.MaxSourceMB) << 20
}
