// Package main provides tunedeck-auth, which obtains the Spotify refresh token
// the player needs for preview search.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/infra/config"
	"github.com/osa030/tunedeck/internal/infra/logger"
	"github.com/osa030/tunedeck/internal/infra/spotify"
)

var (
	app        = kingpin.New("tunedeck-auth", "Obtain a Spotify refresh token for tunedeck")
	configPath = app.Flag("config", "Config file holding spotify.client_id and spotify.client_secret").Default("config.yaml").String()
	port       = app.Flag("port", "Callback port; http://127.0.0.1:<port>/callback must be a registered redirect URI").Default("8888").Int()
	save       = app.Flag("save", "Write the token to spotify.refresh_token in the config file").Bool()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
)

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() { _ = closeLog() }()

	if err := run(); err != nil {
		zlog.Error().Msgf("Error: %v", err)
		_ = closeLog()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		return errors.New("spotify.client_id and spotify.client_secret are required (config file or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(*port))
	authz, err := spotify.NewAuthorizer(spotify.AuthorizerConfig{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURL:  "http://" + addr + "/callback",
	})
	if err != nil {
		return err
	}

	token, err := authorize(ctx, addr, authz)
	if err != nil {
		return err
	}

	if *save {
		if err := config.SaveSpotifyRefreshToken(*configPath, token); err != nil {
			return err
		}
		zlog.Info().Msgf("Saved spotify.refresh_token to %s", *configPath)
		return nil
	}

	fmt.Println()
	fmt.Println("Add the token to your config file:")
	fmt.Println()
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: %q\n", token)
	fmt.Println()
	fmt.Println("or export it:")
	fmt.Printf("  export SPOTIFY_REFRESH_TOKEN=%q\n", token)
	return nil
}

// authorize serves the callback on addr until the flow completes and returns
// the refresh token.
func authorize(ctx context.Context, addr string, authz *spotify.Authorizer) (string, error) {
	mux := http.NewServeMux()
	mux.Handle("GET /callback", authz)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", errors.Wrapf(err, "failed to listen on %s", addr)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel(errors.Wrap(err, "callback server failed"))
		}
	}()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Warn().Err(err).Msg("Callback server shutdown failed")
		}
	}()

	fmt.Println("Open this URL in a browser to authorize tunedeck:")
	fmt.Println()
	fmt.Println(authz.AuthURL())
	fmt.Println()
	zlog.Info().Msgf("Waiting for the callback on %s", addr)

	token, err := authz.Wait(ctx)
	if err != nil {
		return "", err
	}
	zlog.Debug().Msgf("Token received: expires=%s", token.Expiry.Format(time.RFC3339))
	return token.RefreshToken, nil
}

// loadConfig reads path, falling back to defaults and the environment when the
// file does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		zlog.Debug().Msgf("Config %s not found, using the environment", path)
		return config.Load("")
	}
	return config.Load(path)
}
