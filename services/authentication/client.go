package authentication

import (
	"context"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
)

// Client is a typed client for a remote AuthenticationService.
type Client struct {
	proxy *coach.Proxy
}

// NewClient wraps a proxy to an AuthenticationService.
func NewClient(proxy *coach.Proxy) *Client {
	return &Client{proxy: proxy}
}

func (c *Client) CreateUser(ctx context.Context, userID, password, name, email string) error {
	_, err := c.proxy.Call(ctx, "create_user", coach.Args{
		"user_id":  userID,
		"password": password,
		"name":     name,
		"email":    email,
	})
	return err
}

// UserToken logs in and returns the session token.
func (c *Client) UserToken(ctx context.Context, userID, password string) (string, error) {
	return c.proxy.CallText(ctx, "get_user_token", coach.Args{"user_id": userID, "password": password})
}

// CheckUserToken reports whether the pair is a live session.
func (c *Client) CheckUserToken(ctx context.Context, userID, token string) (bool, error) {
	var ok bool
	err := c.proxy.CallJSON(ctx, "check_user_token", coach.Args{"user_id": userID, "token": token}, &ok)
	return ok, err
}

// Verify returns an INVALID_TOKEN error unless the pair is a live session.
func (c *Client) Verify(ctx context.Context, userID, token string) error {
	if userID == "" || token == "" {
		return errors.InvalidUserToken()
	}
	ok, err := c.CheckUserToken(ctx, userID, token)
	if err != nil {
		return err
	}
	if !ok {
		return errors.InvalidUserToken()
	}
	return nil
}

func (c *Client) Logout(ctx context.Context, userID, token string) error {
	_, err := c.proxy.Call(ctx, "logout", coach.Args{"user_id": userID, "token": token})
	return err
}

func (c *Client) UserInfo(ctx context.Context, userID, token string) (UserInfo, error) {
	var info UserInfo
	err := c.proxy.CallJSON(ctx, "get_user_info", coach.Args{"user_id": userID, "token": token}, &info)
	return info, err
}

func (c *Client) ChangePassword(ctx context.Context, userID, token, password string) error {
	_, err := c.proxy.Call(ctx, "change_password", coach.Args{
		"user_id":  userID,
		"token":    token,
		"password": password,
	})
	return err
}
