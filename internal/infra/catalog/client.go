// Package catalog provides a client for the music backend: song listing,
// search, playlists, stream token resolution and cookie-based auth.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

const (
	pathSongs       = "/api/music"
	pathSearch      = "/api/music/search"
	pathStreamToken = "/api/music/stream-token/"
	pathStream      = "/api/music/stream/"
	pathPlaylists   = "/api/playlist"
	pathMyPlaylists = "/api/playlist/mine"
	pathLogin       = "/api/auth/login"
	pathLogout      = "/api/auth/logout"
	pathRefresh     = "/api/auth/refresh"
	pathRegister    = "/api/auth/register"
	pathMe          = "/api/auth/me"
	pathPassword    = "/api/auth/change-password"
)

// Errors
var (
	ErrUnauthorized   = errors.New("not authorized")
	ErrSessionExpired = errors.New("session expired")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "catalog: " + http.StatusText(e.StatusCode)
	}
	return "catalog: " + http.StatusText(e.StatusCode) + ": " + e.Message
}

// Config represents catalog client configuration.
type Config struct {
	BaseURL      string
	PreferStream bool // Resolve every song through a stream token, even when it has a URL
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// Client is a music backend client. Auth cookies are kept in its jar.
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	preferStream bool
	maxRetries   int
	retryDelay   time.Duration

	refreshMu sync.Mutex // Serializes token refreshes

	hookMu    sync.RWMutex
	onExpired func(err error)
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid catalog base URL: %q", cfg.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cookie jar")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Client{
		baseURL:      base,
		httpClient:   &http.Client{Timeout: cfg.Timeout, Jar: jar},
		preferStream: cfg.PreferStream,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// OnSessionExpired sets the hook called when a token refresh is rejected.
func (c *Client) OnSessionExpired(fn func(err error)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onExpired = fn
}

// HTTPClient returns the client's HTTP client, sharing its cookie jar.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// do performs a JSON request. Transient failures are retried; a 401 is
// answered with a single token refresh and a replay of the request.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = b
	}

	return c.retry(ctx, func() error {
		return c.doOnce(ctx, method, path, query, body, out)
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	status, data, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && refreshable(path) {
		if err := c.refresh(ctx); err != nil {
			c.expire(err)
			return errors.Mark(errors.Wrap(err, "session refresh failed"), ErrSessionExpired)
		}
		status, data, err = c.send(ctx, method, path, query, body)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return statusError(status, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) (int, []byte, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to read response body")
	}

	zlog.Debug().Msgf("catalog: %s %s -> %d", method, path, resp.StatusCode)
	return resp.StatusCode, data, nil
}

// refresh asks the backend to rotate the access cookie.
func (c *Client) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	status, data, err := c.send(ctx, http.MethodPost, pathRefresh, nil, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return statusError(status, data)
	}
	zlog.Debug().Msg("catalog: session refreshed")
	return nil
}

func (c *Client) expire(err error) {
	c.hookMu.RLock()
	fn := c.onExpired
	c.hookMu.RUnlock()

	zlog.Warn().Err(err).Msg("catalog: session expired")
	if fn != nil {
		fn(err)
	}
}

// refreshable reports whether a 401 on path should trigger a refresh.
// Bad credentials on login or register are not an expired session.
func refreshable(path string) bool {
	return path != pathRefresh && path != pathLogin && path != pathRegister
}

func statusError(status int, data []byte) error {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &apiErr)

	msg := apiErr.Error
	if msg == "" {
		msg = apiErr.Message
	}

	var err error = &StatusError{StatusCode: status, Message: msg}
	if status == http.StatusUnauthorized {
		err = errors.Mark(err, ErrUnauthorized)
	}
	return err
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
// Rate limit errors and server errors are retryable.
func isRetryable(err error) bool {
	if errors.Is(err, ErrSessionExpired) {
		return false
	}
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
}
