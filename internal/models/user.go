package models

import "strings"

// Role is the account type assigned by the student union API.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleBDE     Role = "BDE"
	RoleStudent Role = "STUDENT"
)

// ParseRole normalises a role string; unknown values are returned as-is so that callers
// can still route them to the fallback page.
func ParseRole(raw string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(raw)))
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleBDE, RoleStudent:
		return true
	default:
		return false
	}
}

// User is the authenticated account as returned by the auth API and cached locally.
type User struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Role           Role    `json:"role"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
	Bio            *string `json:"bio,omitempty"`
	YearOfStudy    *int    `json:"year_of_study,omitempty"`
	Major          *string `json:"major,omitempty"`
}

// FullName joins first and last names.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
