package apiclient

import (
	"context"
	"net/http"

	"github.com/noah-isme/bde-portal/internal/dto"
	"github.com/noah-isme/bde-portal/internal/models"
)

// AuthAPI wraps the /auth endpoints.
type AuthAPI struct {
	c *Client
}

// Auth returns the auth endpoints of c.
func (c *Client) Auth() *AuthAPI {
	return &AuthAPI{c: c}
}

// Login exchanges credentials for a user record and token pair.
func (a *AuthAPI) Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	var res dto.LoginResponse
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/login/", body: req, anon: true, wantBody: true}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout revokes refreshToken, authenticating with accessToken.
func (a *AuthAPI) Logout(ctx context.Context, tokens models.Tokens) error {
	return a.c.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/logout/",
		body:   dto.LogoutRequest{RefreshToken: tokens.Refresh},
		bearer: tokens.Access,
	}, nil)
}

// Register creates an account without signing in.
func (a *AuthAPI) Register(ctx context.Context, req dto.RegisterRequest) (*models.User, error) {
	var user models.User
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/register/", body: req, anon: true, wantBody: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RequestPasswordReset asks the API to email a reset link.
func (a *AuthAPI) RequestPasswordReset(ctx context.Context, req dto.PasswordResetRequest) (string, error) {
	var res dto.DetailResponse
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/password-reset/", body: req, anon: true}, &res); err != nil {
		return "", err
	}
	return res.Detail, nil
}

// ConfirmPasswordReset sets a new password using the emailed token.
func (a *AuthAPI) ConfirmPasswordReset(ctx context.Context, req dto.PasswordResetConfirmRequest) (string, error) {
	var res dto.DetailResponse
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/password-reset/confirm/", body: req, anon: true}, &res); err != nil {
		return "", err
	}
	return res.Detail, nil
}
