package dto

import "github.com/noah-isme/bde-portal/internal/models"

// LoginRequest is the body of POST /auth/login/.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	User   models.User   `json:"user"`
	Tokens models.Tokens `json:"tokens"`
}

// LogoutRequest revokes the refresh token server-side.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RegisterRequest creates a student account.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	YearOfStudy *int   `json:"year_of_study,omitempty"`
	Major       string `json:"major,omitempty"`
}

// PasswordResetRequest starts the reset flow for an email.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest completes the reset flow with the emailed token.
type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	UID      string `json:"uid"`
	Password string `json:"password"`
}

// DetailResponse carries a human readable acknowledgement.
type DetailResponse struct {
	Detail string `json:"detail"`
}
