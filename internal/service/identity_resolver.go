package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
)

// IdentityResolver maps a policy-approved identity to a local user, provisioning one
// when the username is unknown.
type IdentityResolver struct {
	users         repository.UserRepository
	adminUsername string
	callTimeout   time.Duration
}

func NewIdentityResolver(users repository.UserRepository, adminUsername string, callTimeout time.Duration) *IdentityResolver {
	if adminUsername == "" {
		adminUsername = "admin"
	}
	return &IdentityResolver{
		users:         users,
		adminUsername: adminUsername,
		callTimeout:   callTimeout,
	}
}

// Resolve never returns ReasonTokenAcquisitionFailed, ReasonExtractionFailed or
// ReasonPolicyDenied. A disabled existing user is never re-provisioned.
func (r *IdentityResolver) Resolve(ctx context.Context, identity models.Identity, provider config.ProviderConfig) models.AuthOutcome {
	logger := zerolog.Ctx(ctx).With().Str("username", identity.Username).Logger()

	lookupCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	user, err := r.users.GetUser(lookupCtx, identity.Username)
	cancel()

	var outcome models.AuthOutcome
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		logger.Debug().Msg("No local user, provisioning")
		outcome = r.provision(ctx, identity, provider)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Msg("Local user lookup timed out")
		outcome = models.Rejected(models.ReasonTimeout, "", err)
	case err != nil:
		// corrupt records and store faults both stop the attempt
		logger.Error().Err(err).Msg("Failed to load local user")
		outcome = models.Rejected(models.ReasonUserInitFailure, "", err)
	case user == nil:
		outcome = models.Rejected(models.ReasonUserInitFailure, "",
			fmt.Errorf("%w: %s: store returned no user", repository.ErrUserInit, identity.Username))
	case user.Enabled:
		outcome = models.Authenticated(user)
	default:
		logger.Info().Msg("Local user exists but is not enabled")
		outcome = models.PendingEnablement(user)
	}

	outcome.ProviderID = provider.ProviderID
	outcome.Username = identity.Username
	outcome.Email = identity.Email
	return outcome
}

func (r *IdentityResolver) provision(ctx context.Context, identity models.Identity, provider config.ProviderConfig) models.AuthOutcome {
	user := r.users.NewUser()
	user.Username = identity.Username
	user.Email = identity.Email
	user.FirstName = identity.FirstName
	user.LastName = identity.LastName
	user.Enabled = provider.UserAutoEnabled
	user.Verified = provider.UserAutoVerified

	persisted := false
	if provider.ForceUserCreate {
		persisted = r.createUser(ctx, user)
	}

	var outcome models.AuthOutcome
	if user.Enabled {
		outcome = models.Authenticated(user)
	} else {
		outcome = models.PendingEnablement(user)
	}
	outcome.NewUser = true
	outcome.EagerSave = provider.ForceUserCreate
	outcome.Persisted = persisted
	return outcome
}

// EnsureAdmin creates the acting admin account when the store does not have it yet.
// Forced user creation is recorded against this account and is skipped without it.
func (r *IdentityResolver) EnsureAdmin(ctx context.Context) (created bool, err error) {
	_, err = r.users.GetUser(ctx, r.adminUsername)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return false, fmt.Errorf("failed to look up admin %s: %w", r.adminUsername, err)
	}

	admin := r.users.NewUser()
	admin.Username = r.adminUsername
	admin.Enabled = true
	admin.Verified = true
	err = r.users.CreateUser(ctx, admin, nil, false, models.EventDetails{})
	if errors.Is(err, repository.ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create admin %s: %w", r.adminUsername, err)
	}
	zerolog.Ctx(ctx).Info().Str("admin", r.adminUsername).Msg("Created acting admin account")
	return true, nil
}

// createUser saves user as the admin account. Failures are logged and reported as false;
// they never change the outcome of the attempt.
func (r *IdentityResolver) createUser(ctx context.Context, user *models.LocalUser) bool {
	logger := zerolog.Ctx(ctx).With().Str("username", user.Username).Logger()

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	admin, err := r.users.GetUser(callCtx, r.adminUsername)
	if err != nil {
		logger.Error().Err(err).Str("admin", r.adminUsername).Msg("Cannot load admin user, new user not saved")
		return false
	}

	err = r.users.CreateUser(callCtx, user, admin, true, models.NewOpenIDUserEvent())
	switch {
	case errors.Is(err, repository.ErrUserExists):
		logger.Info().Msg("User was created by a concurrent sign-in, not saved again")
		return false
	case err != nil:
		logger.Warn().Err(err).Msg("Failed to save new user")
		return false
	}
	logger.Info().Bool("enabled", user.Enabled).Msg("New user saved")
	return true
}
