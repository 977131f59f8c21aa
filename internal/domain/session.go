package domain

import "time"

// Session is the provider-issued proof of authentication.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"-"` // only ever carried in the HttpOnly session cookie
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
}

// Expired reports whether the session is past its expiry at now. A session
// without an expiry never expires on its own.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Valid reports whether s is present and unexpired at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && !s.Expired(now)
}

// User is an identity known to the provider.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// AuthResponse is what the provider returns for sign-up and sign-in. Session is
// nil when the provider holds the identity until its email is confirmed.
type AuthResponse struct {
	User    User
	Session *Session
}
