package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// AuthorizerConfig configures an Authorizer.
type AuthorizerConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string       // Must match a redirect URI registered for the app
	HTTPClient   *http.Client // Used for the token exchange; nil selects the default client
}

// Authorizer runs the authorization code flow once. Serve it at the path of
// the redirect URL, send the user to AuthURL, then Wait for the token.
type Authorizer struct {
	auth   *spotifyauth.Authenticator
	state  string
	client *http.Client

	once   sync.Once
	result chan authResult
}

type authResult struct {
	token *oauth2.Token
	err   error
}

// NewAuthorizer creates an Authorizer with a random state value.
func NewAuthorizer(cfg AuthorizerConfig) (*Authorizer, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify client ID and secret are required")
	}
	if _, err := url.ParseRequestURI(cfg.RedirectURL); err != nil {
		return nil, errors.Wrap(err, "invalid redirect URL")
	}

	return &Authorizer{
		auth: spotifyauth.New(
			spotifyauth.WithRedirectURL(cfg.RedirectURL),
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
			spotifyauth.WithScopes(scopes...),
		),
		state:  uuid.NewString(),
		client: cfg.HTTPClient,
		result: make(chan authResult, 1),
	}, nil
}

// AuthURL returns the consent page URL for the user to open.
func (a *Authorizer) AuthURL() string {
	return a.auth.AuthURL(a.state)
}

// ServeHTTP handles the redirect back from Spotify. Requests carrying a
// foreign state are rejected without ending the flow.
func (a *Authorizer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("state") != a.state {
		zlog.Warn().Msg("spotify: ignoring callback with unexpected state")
		http.Error(w, "unexpected state", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	if a.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	}

	token, err := a.auth.Token(ctx, a.state, r)
	if err == nil && token.RefreshToken == "" {
		err = errors.New("no refresh token in response")
	}
	if err != nil {
		http.Error(w, "authorization failed", http.StatusForbidden)
		a.finish(authResult{err: errors.Wrap(err, "spotify authorization failed")})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "tunedeck is authorized. You can close this window.")
	a.finish(authResult{token: token})
}

// Wait blocks until the callback completed the flow or ctx ends.
func (a *Authorizer) Wait(ctx context.Context) (*oauth2.Token, error) {
	select {
	case res := <-a.result:
		return res.token, res.err
	case <-ctx.Done():
		return nil, errors.Wrap(context.Cause(ctx), "authorization aborted")
	}
}

func (a *Authorizer) finish(res authResult) {
	a.once.Do(func() { a.result <- res })
}
