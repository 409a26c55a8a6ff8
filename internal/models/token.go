package models

// Tokens are opaque bearer credentials. They are stored and replayed, never decoded.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Empty reports whether no access token is held.
func (t Tokens) Empty() bool {
	return t.Access == ""
}
