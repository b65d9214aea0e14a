package repository

import (
	"context"
	"fmt"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
)

// StateRepository keeps login state between the redirect to the provider and the callback.
type StateRepository interface {
	StoreLoginState(ctx context.Context, state models.LoginState) error
	// ConsumeLoginState returns and removes the state in one step, so a state value
	// can be redeemed at most once.
	ConsumeLoginState(ctx context.Context, state string) (*models.LoginState, error)
}

var ErrStateNotFound = fmt.Errorf("login state not found or expired")
