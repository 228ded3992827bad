// Package main provides the terminal player entry point.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/app/discover"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/app/session"
	"github.com/osa030/tunedeck/internal/app/session/state"
	"github.com/osa030/tunedeck/internal/domain/track"
	"github.com/osa030/tunedeck/internal/infra/audio"
	"github.com/osa030/tunedeck/internal/infra/catalog"
	"github.com/osa030/tunedeck/internal/infra/config"
	"github.com/osa030/tunedeck/internal/infra/lastfm"
	"github.com/osa030/tunedeck/internal/infra/likestore"
	"github.com/osa030/tunedeck/internal/infra/logger"
	"github.com/osa030/tunedeck/internal/infra/spotify"
)

var (
	app        = kingpin.New("tunedeck", "Terminal music player")
	configPath = app.Flag("config", "Path to config file (defaults apply when missing)").Default("config.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	// songs command
	songsCmd = app.Command("songs", "List the catalog and exit")

	// search command
	searchCmd     = app.Command("search", "Search the catalog and exit")
	searchQuery   = searchCmd.Arg("query", "Search text").Required().String()
	searchSpotify = searchCmd.Flag("spotify", "Search Spotify previews instead of the catalog").Bool()

	// playlists command
	playlistsCmd = app.Command("playlists", "List your playlists and exit (requires credentials)")

	// liked command
	likedCmd = app.Command("liked", "List liked track IDs and exit")
)

func init() {
	app.Command("start", "Start the interactive player (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{Level: "info", File: *logfile}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() { _ = closeLog() }()

	// Load config
	cfg, err := loadConfig(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(command, cfg); err != nil {
		zlog.Error().Msgf("Error: %v", err)
		_ = closeLog()
		os.Exit(1)
	}
}

// loadConfig reads path, falling back to defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		zlog.Info().Msgf("Config %s not found, using defaults", path)
		return config.Load("")
	}
	zlog.Info().Msgf("Loading config from %s", path)
	return config.Load(path)
}

func newCatalog(cfg *config.Config) (*catalog.Client, error) {
	return catalog.New(catalog.Config{
		BaseURL:      cfg.Catalog.BaseURL,
		PreferStream: cfg.Catalog.PreferStream,
		Timeout:      cfg.Catalog.Timeout(),
		MaxRetries:   cfg.Catalog.MaxRetries,
		RetryDelay:   time.Second,
	})
}

func newSpotify(ctx context.Context, cfg *config.Config) (*spotify.Client, error) {
	if cfg.SpotifyAwaitingToken() {
		zlog.Warn().Msg("Spotify refresh token missing, previews disabled. Run tunedeck-auth --save to obtain one.")
	}
	if !cfg.SpotifyEnabled() {
		return nil, nil
	}
	return spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
	})
}

// newRecommender returns nil when discovery is not configured. Related tracks
// are matched in the catalog first, then in Spotify previews.
func newRecommender(cfg *config.Config, cat *catalog.Client, sp *spotify.Client) (recommender, error) {
	if !cfg.DiscoverEnabled() {
		return nil, nil
	}
	lf, err := lastfm.New(lastfm.Config{APIKey: cfg.Discover.APIKey, Timeout: cfg.Catalog.Timeout()})
	if err != nil {
		return nil, err
	}

	sources := []discover.Source{{Name: "catalog", Searcher: cat}}
	if sp != nil {
		sources = append(sources, discover.Source{
			Name: "spotify",
			Searcher: discover.SearcherFunc(func(ctx context.Context, query string) ([]track.Track, error) {
				return sp.Search(ctx, query, 10)
			}),
		})
	}

	rec, err := discover.New(lf, sources, discover.Config{
		TagCount:      cfg.Discover.TagCount,
		TagWeight:     cfg.Discover.TagWeight,
		SimilarWeight: cfg.Discover.SimilarWeight,
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// run executes the selected command. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(command string, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := newCatalog(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create catalog client")
	}
	sp, err := newSpotify(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify client")
	}

	switch command {
	case songsCmd.FullCommand():
		tracks, err := cat.ListSongs(ctx)
		if err != nil {
			return err
		}
		printTracks(os.Stdout, tracks, nil)
		return nil
	case searchCmd.FullCommand():
		return runSearch(ctx, cat, sp, *searchQuery, *searchSpotify)
	case playlistsCmd.FullCommand():
		return runPlaylists(ctx, cfg, cat)
	case likedCmd.FullCommand():
		return runLiked(cfg)
	}

	return runPlayer(ctx, cfg, cat, sp)
}

func runSearch(ctx context.Context, cat *catalog.Client, sp *spotify.Client, query string, useSpotify bool) error {
	if useSpotify {
		if sp == nil {
			return errors.New("spotify is not configured")
		}
		tracks, err := sp.Search(ctx, query, 20)
		if err != nil {
			return err
		}
		printTracks(os.Stdout, tracks, nil)
		return nil
	}
	tracks, err := cat.Search(ctx, query)
	if err != nil {
		return err
	}
	printTracks(os.Stdout, tracks, nil)
	return nil
}

func runPlaylists(ctx context.Context, cfg *config.Config, cat *catalog.Client) error {
	if !cfg.HasCredentials() {
		return errors.New("catalog username and password are required")
	}
	if _, err := cat.Login(ctx, cfg.Catalog.Username, cfg.Catalog.Password); err != nil {
		return errors.Wrap(err, "login failed")
	}
	defer func() { _ = cat.Logout(context.Background()) }()

	playlists, err := cat.MyPlaylists(ctx)
	if err != nil {
		return err
	}
	printPlaylists(os.Stdout, playlists)
	return nil
}

func runLiked(cfg *config.Config) error {
	store, err := likestore.Open(cfg.Likes.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ids := store.IDs()
	if len(ids) == 0 {
		fmt.Println("No liked tracks")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runPlayer(ctx context.Context, cfg *config.Config, cat *catalog.Client, sp *spotify.Client) error {
	likes, err := likestore.Open(cfg.Likes.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open like store")
	}
	defer likes.Close()

	out, err := audio.NewFromConfig(audio.Config{
		Type:           cfg.Output.Type,
		Settings:       cfg.Output.Settings,
		TickInterval:   cfg.Output.TickInterval(),
		MaxSourceBytes: cfg.Output.MaxSourceBytes(),
		HTTPClient:     cat.HTTPClient(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create audio output")
	}
	defer out.Close()

	ctrl := playback.NewController(out, cat, likes, playback.Config{
		RetryDelay: cfg.Playback.RetryDelay(),
		MaxRetries: cfg.Playback.RetryLimit(),
	})
	defer ctrl.Close()

	sess := session.NewManager(cat, ctrl)
	cat.OnSessionExpired(sess.Expire)

	if cfg.HasCredentials() {
		if _, err := sess.Login(ctx, cfg.Catalog.Username, cfg.Catalog.Password); err != nil {
			zlog.Warn().Msgf("Login failed, continuing without a session: %v", err)
		}
	}

	var previews previewSearcher
	if sp != nil {
		previews = sp
	}
	rec, err := newRecommender(cfg, cat, sp)
	if err != nil {
		return errors.Wrap(err, "failed to create recommender")
	}

	p := newPlayer(ctrl, sess, cat, previews, rec, os.Stdout)
	err = p.run(ctx, os.Stdin)

	if sess.Phase() == state.PhaseLoggedIn {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if lerr := sess.Logout(logoutCtx); lerr != nil {
			zlog.Warn().Msgf("Logout on exit failed: %v", lerr)
		}
	}
	zlog.Info().Msg("Player stopped")
	return err
}
