package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/mocks"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository/memory"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"
)

var testIdentity = models.Identity{
	ProviderID: "idp1",
	Subject:    "u1",
	Username:   "u1",
	Email:      "a@ok.org",
	FirstName:  "Ann",
	LastName:   "Lee",
}

func resolverProvider(autoEnabled, autoVerified, force bool) config.ProviderConfig {
	return config.ProviderConfig{
		ProviderID:       "idp1",
		Enabled:          true,
		UserAutoEnabled:  autoEnabled,
		UserAutoVerified: autoVerified,
		ForceUserCreate:  force,
	}
}

func seedAdmin(t *testing.T, users repository.UserRepository) {
	t.Helper()
	require.NoError(t, users.SaveUser(context.Background(), &models.LocalUser{Username: "admin", Email: "admin@ok.org", Enabled: true}, nil, false, models.EventDetails{}))
}

func TestIdentityResolver_ExistingUser(t *testing.T) {
	ctx := context.Background()

	t.Run("Enabled", func(t *testing.T) {
		users := memory.NewMemoryUserRepository()
		require.NoError(t, users.SaveUser(ctx, &models.LocalUser{Username: "u1", Email: "a@ok.org", Enabled: true}, nil, false, models.EventDetails{}))

		outcome := service.NewIdentityResolver(users, "admin", time.Second).Resolve(ctx, testIdentity, resolverProvider(true, false, true))
		require.True(t, outcome.IsAuthenticated())
		assert.Equal(t, "u1", outcome.User.Username)
		assert.False(t, outcome.NewUser)
		assert.Equal(t, "idp1", outcome.ProviderID)
	})

	t.Run("DisabledIsNotReprovisioned", func(t *testing.T) {
		repo := new(mocks.MockUserRepository)
		repo.On("GetUser", mock.Anything, "u1").Return(&models.LocalUser{Username: "u1", Email: "a@ok.org"}, nil).Once()

		outcome := service.NewIdentityResolver(repo, "admin", time.Second).Resolve(ctx, testIdentity, resolverProvider(true, true, true))
		require.True(t, outcome.IsPending())
		assert.Equal(t, "u1", outcome.User.Username)
		assert.Equal(t, "a@ok.org", outcome.Email)
		assert.False(t, outcome.NewUser)
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIdentityResolver_LookupFaults(t *testing.T) {
	ctx := context.Background()
	faults := map[string]error{
		"CorruptRecord": fmt.Errorf("%w: u1: bad json", repository.ErrUserInit),
		"StoreDown":     errors.New("connection refused"),
	}
	for name, fault := range faults {
		t.Run(name, func(t *testing.T) {
			repo := new(mocks.MockUserRepository)
			repo.On("GetUser", mock.Anything, "u1").Return(nil, fault).Once()

			outcome := service.NewIdentityResolver(repo, "admin", time.Second).Resolve(ctx, testIdentity, resolverProvider(true, true, true))
			require.True(t, outcome.IsRejected())
			assert.Equal(t, models.ReasonUserInitFailure, outcome.Reason)
			assert.ErrorIs(t, outcome.Err, fault)
			assert.Equal(t, "u1", outcome.Username)
			repo.AssertNotCalled(t, "NewUser")
			repo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestIdentityResolver_LookupTimeout(t *testing.T) {
	repo := new(mocks.MockUserRepository)
	repo.On("GetUser", mock.Anything, "u1").
		Return(nil, fmt.Errorf("failed to query user u1: %w", context.DeadlineExceeded)).Once()

	outcome := service.NewIdentityResolver(repo, "admin", time.Second).Resolve(context.Background(), testIdentity, resolverProvider(true, true, true))
	require.True(t, outcome.IsRejected())
	assert.Equal(t, models.ReasonTimeout, outcome.Reason)
	assert.ErrorIs(t, outcome.Err, context.DeadlineExceeded)
	assert.Equal(t, "u1", outcome.Username)
	repo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIdentityResolver_Provisioning(t *testing.T) {
	ctx := context.Background()

	t.Run("ForcedCreateAsAdmin", func(t *testing.T) {
		users := memory.NewMemoryUserRepository()
		seedAdmin(t, users)

		outcome := service.NewIdentityResolver(users, "admin", time.Second).Resolve(ctx, testIdentity, resolverProvider(true, true, true))
		require.True(t, outcome.IsAuthenticated())
		assert.True(t, outcome.NewUser)
		assert.True(t, outcome.EagerSave)
		assert.True(t, outcome.Persisted)

		saved, err := users.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "a@ok.org", saved.Email)
		assert.Equal(t, "Ann", saved.FirstName)
		assert.Equal(t, "Lee", saved.LastName)
		assert.True(t, saved.Enabled)
		assert.True(t, saved.Verified)

		events, err := users.ListEvents(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "admin", events[0].ActingAs)
		assert.Equal(t, models.NewOpenIDUserEvent(), events[0].Details)
	})

	t.Run("NotForcedPersistsNothing", func(t *testing.T) {
		users := memory.NewMemoryUserRepository()

		outcome := service.NewIdentityResolver(users, "admin", time.Second).Resolve(ctx, testIdentity, resolverProvider(true, false, false))
		require.True(t, outcome.IsAuthenticated())
		assert.True(t, outcome.NewUser)
		assert.False(t, outcome.EagerSave)
		assert.False(t, outcome.Persisted)
		assert.False(t, outcome.User.Verified)

		_, err := users.GetUser(ctx, "u1")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
	})

	t.Run("NotAutoEnabledIsPending", func(t *testing.T) {
		users := memory.NewMemoryUserRepository()
		seedAdmin(t, users)

		outcome := service.NewIdentityResolver(users, "admin", time.Second).Resolve(ctx, testIdentity, resolverProvider(false, false, true))
		require.True(t, outcome.IsPending())
		assert.True(t, outcome.Persisted)
		assert.False(t, outcome.User.Enabled)

		saved, err := users.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, saved.Enabled)
	})

	t.Run("MissingAdminIsSwallowed", func(t *testing.T) {
		users := memory.NewMemoryUserRepository()

		outcome := service.NewIdentityResolver(users, "admin", time.Second).Resolve(ctx, testIdentity, resolverProvider(true, false, true))
		require.True(t, outcome.IsAuthenticated())
		assert.True(t, outcome.NewUser)
		assert.False(t, outcome.Persisted)
	})

	t.Run("SaveFailureIsSwallowed", func(t *testing.T) {
		admin := &models.LocalUser{Username: "root", Enabled: true}
		repo := new(mocks.MockUserRepository)
		repo.On("GetUser", mock.Anything, "u1").Return(nil, repository.ErrUserNotFound).Once()
		repo.On("NewUser").Return(&models.LocalUser{}).Once()
		repo.On("GetUser", mock.Anything, "root").Return(admin, nil).Once()
		repo.On("CreateUser", mock.Anything, mock.MatchedBy(func(u *models.LocalUser) bool {
			return u.Username == "u1" && u.Email == "a@ok.org" && u.Enabled
		}), admin, true, models.NewOpenIDUserEvent()).Return(errors.New("disk full")).Once()

		outcome := service.NewIdentityResolver(repo, "root", time.Second).Resolve(ctx, testIdentity, resolverProvider(true, false, true))
		require.True(t, outcome.IsAuthenticated())
		assert.True(t, outcome.EagerSave)
		assert.False(t, outcome.Persisted)
		repo.AssertExpectations(t)
	})

	t.Run("ConcurrentCreateIsSwallowed", func(t *testing.T) {
		repo := new(mocks.MockUserRepository)
		repo.On("GetUser", mock.Anything, "u1").Return(nil, repository.ErrUserNotFound).Once()
		repo.On("NewUser").Return(&models.LocalUser{}).Once()
		repo.On("GetUser", mock.Anything, "admin").Return(&models.LocalUser{Username: "admin"}, nil).Once()
		repo.On("CreateUser", mock.Anything, mock.Anything, mock.Anything, true, mock.Anything).Return(repository.ErrUserExists).Once()

		outcome := service.NewIdentityResolver(repo, "", time.Second).Resolve(ctx, testIdentity, resolverProvider(true, false, true))
		require.True(t, outcome.IsAuthenticated())
		assert.True(t, outcome.NewUser)
		assert.False(t, outcome.Persisted)
		repo.AssertNumberOfCalls(t, "CreateUser", 1)
	})
}

func TestIdentityResolver_EnsureAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesMissingAdmin", func(t *testing.T) {
		users := memory.NewMemoryUserRepository()
		resolver := service.NewIdentityResolver(users, "admin", time.Second)

		created, err := resolver.EnsureAdmin(ctx)
		require.NoError(t, err)
		assert.True(t, created)

		admin, err := users.GetUser(ctx, "admin")
		require.NoError(t, err)
		assert.True(t, admin.Enabled)

		created, err = resolver.EnsureAdmin(ctx)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("PendingUserIsStoredOnceAdminExists", func(t *testing.T) {
		users := memory.NewMemoryUserRepository()
		resolver := service.NewIdentityResolver(users, "admin", time.Second)
		_, err := resolver.EnsureAdmin(ctx)
		require.NoError(t, err)

		outcome := resolver.Resolve(ctx, testIdentity, resolverProvider(false, false, true))
		require.True(t, outcome.IsPending())
		assert.True(t, outcome.Persisted)

		saved, err := users.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, saved.Enabled)
	})

	t.Run("StoreFault", func(t *testing.T) {
		repo := new(mocks.MockUserRepository)
		repo.On("GetUser", mock.Anything, "admin").Return(nil, errors.New("connection refused")).Once()

		created, err := service.NewIdentityResolver(repo, "admin", time.Second).EnsureAdmin(ctx)
		require.Error(t, err)
		assert.False(t, created)
		repo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
