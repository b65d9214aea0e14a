package models

import (
	"time"
)

// LoginState is kept between the login redirect and the callback. It carries the
// provider id out-of-band so the callback does not trust a client-supplied provider.
type LoginState struct {
	State        string    `json:"state"`
	ProviderID   string    `json:"providerId"`
	CodeVerifier string    `json:"codeVerifier"`
	Expiry       time.Time `json:"expiry"`
}

// IsExpired checks if the login state has expired.
func (s *LoginState) IsExpired() bool {
	return time.Now().UTC().After(s.Expiry)
}

type LoginResponse struct {
	Message     string     `json:"message"`
	Token       string     `json:"token"`
	TokenExpiry time.Time  `json:"tokenExpiry"`
	User        *LocalUser `json:"user"`
}

type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Reason   string `json:"reason,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}
