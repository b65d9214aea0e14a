package models

import "time"

// LocalUser is the system-of-record account an OpenID identity resolves to.
type LocalUser struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
	Enabled   bool      `json:"enabled"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventDetails describes the audit event recorded with an administrative save.
type EventDetails struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
	Comment  string `json:"comment"`
}

// UserEvent is a persisted audit entry.
type UserEvent struct {
	Username  string       `json:"username"`
	ActingAs  string       `json:"actingAs"`
	Details   EventDetails `json:"details"`
	CreatedAt time.Time    `json:"createdAt"`
}

// NewOpenIDUserEvent is recorded when a first-time OpenID sign-in creates an account.
func NewOpenIDUserEvent() EventDetails {
	return EventDetails{
		Category: "PROJECT_ACCESS",
		Type:     "PROCESS",
		Action:   "added new user",
		Reason:   "new user logged in",
		Comment:  "OpenID connect new user",
	}
}
