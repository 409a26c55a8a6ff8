package models

// Session is the client's belief about which user, if any, is signed in.
type Session struct {
	User *User `json:"user"`
}

// IsAuthenticated holds exactly when a user is present.
func (s Session) IsAuthenticated() bool {
	return s.User != nil
}

// Role returns the signed-in user's role or "" for guests.
func (s Session) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}
