package domain

// Session is a point-in-time snapshot of the client's authentication state.
// A zero Session is logged out.
type Session struct {
	User  *User
	Token string
	// Epoch increments on every login or logout transition.
	Epoch uint64
}

// IsAuthenticated reports whether a token is held.
func (s Session) IsAuthenticated() bool {
	return s.Token != ""
}

// Email returns the signed-in user's email, or "".
func (s Session) Email() string {
	if s.User == nil {
		return ""
	}
	return s.User.Email
}
