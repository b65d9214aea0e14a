package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
)

// UserRepository is the local user store the authentication core resolves identities against.
type UserRepository interface {
	// GetUser retrieves a user by username.
	// It should return ErrUserNotFound if the user does not exist, and an error wrapping
	// ErrUserInit if the stored record is corrupt or partial.
	GetUser(ctx context.Context, username string) (*models.LocalUser, error)

	// NewUser returns a blank, unsaved user.
	NewUser() *models.LocalUser

	// CreateUser stores a new user only if the username is free (compare-and-create).
	// It should return ErrUserExists if the username is already taken.
	// When audit is set an event is recorded against actingAdmin.
	CreateUser(ctx context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error

	// SaveUser creates or overwrites the user.
	SaveUser(ctx context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error

	// SetEnabled flips the enabled flag of an existing user.
	// It should return ErrUserNotFound if the user does not exist.
	SetEnabled(ctx context.Context, username string, enabled bool) error

	// ListEvents returns the audit events recorded for username, oldest first.
	ListEvents(ctx context.Context, username string) ([]models.UserEvent, error)
}

// Common errors
var ErrUserNotFound = fmt.Errorf("user not found")
var ErrUserExists = fmt.Errorf("user already exists")
var ErrUserInit = fmt.Errorf("cannot init user from store")

func actingName(admin *models.LocalUser) string {
	if admin == nil {
		return ""
	}
	return admin.Username
}

// NewEvent builds the audit entry stored for a save done by actingAdmin.
func NewEvent(user *models.LocalUser, actingAdmin *models.LocalUser, ev models.EventDetails) models.UserEvent {
	return models.UserEvent{
		Username:  user.Username,
		ActingAs:  actingName(actingAdmin),
		Details:   ev,
		CreatedAt: time.Now().UTC(),
	}
}
