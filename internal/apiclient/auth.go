package apiclient

import (
	"context"
	"net/http"

	"armp/internal/models"
)

// Register creates an account and returns the new user with a token.
func (c *Client) Register(ctx context.Context, payload models.RegisterPayload) (models.AuthData, error) {
	var data models.AuthData
	err := c.do(ctx, "register", http.MethodPost, "/auth/register", nil, payload, &data)
	return data, err
}

// Login exchanges credentials for a user and token.
func (c *Client) Login(ctx context.Context, payload models.LoginPayload) (models.AuthData, error) {
	var data models.AuthData
	err := c.do(ctx, "login", http.MethodPost, "/auth/login", nil, payload, &data)
	return data, err
}

// Logout asks the server to invalidate the current token.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout", nil, nil, nil)
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var data struct {
		User models.User `json:"user"`
	}
	err := c.do(ctx, "me", http.MethodGet, "/auth/me", nil, nil, &data)
	return data.User, err
}

// Refresh exchanges the current token for a new one.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	var data struct {
		AccessToken string `json:"accessToken"`
	}
	err := c.do(ctx, "refresh", http.MethodPost, "/auth/refresh", nil, nil, &data)
	return data.AccessToken, err
}
