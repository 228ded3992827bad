package catalog

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
)

// User is the account the backend session belongs to.
type User struct {
	ID        string `json:"_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

type userResponse struct {
	User *User `json:"user"`
}

// Login authenticates with username and password. The session cookies are
// kept by the client.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}

	var resp userResponse
	if err := c.do(ctx, http.MethodPost, pathLogin, nil, req, &resp); err != nil {
		return nil, errors.Wrap(err, "login failed")
	}
	if resp.User == nil {
		// Some deployments only report success
		return &User{Username: username}, nil
	}
	return resp.User, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}

	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}

	if err := c.do(ctx, http.MethodPost, pathRegister, nil, req, nil); err != nil {
		return errors.Wrap(err, "registration failed")
	}
	return nil
}

// ChangePassword replaces the password of the logged-in user.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return errors.New("old and new passwords are required")
	}
	if oldPassword == newPassword {
		return errors.New("new password must differ from the old one")
	}

	req := struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}{oldPassword, newPassword}

	if err := c.do(ctx, http.MethodPost, pathPassword, nil, req, nil); err != nil {
		return errors.Wrap(err, "failed to change password")
	}
	return nil
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, pathLogout, nil, nil, nil); err != nil {
		return errors.Wrap(err, "logout failed")
	}
	return nil
}

// Me returns the logged-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodGet, pathMe, nil, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to get current user")
	}
	if resp.User == nil {
		return nil, errors.Mark(errors.New("no user in response"), ErrUnauthorized)
	}
	return resp.User, nil
}
