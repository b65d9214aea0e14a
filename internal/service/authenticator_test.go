package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/metrics"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/mocks"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository/memory"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"
)

// --- Test Setup ---

type authFixture struct {
	auth    *service.Authenticator
	users   repository.UserRepository
	metrics *metrics.AuthMetrics
}

func newAuthFixture(t *testing.T, props map[string]string, enabled bool, callTimeout time.Duration) *authFixture {
	t.Helper()
	return newAuthFixtureWithVerifier(t, props, enabled, callTimeout, nil)
}

func newAuthFixtureWithVerifier(t *testing.T, props map[string]string, enabled bool, callTimeout time.Duration, verifier service.IDTokenVerifier) *authFixture {
	t.Helper()
	src := config.StaticProviderSource{
		Properties: map[string]map[string]string{"idp1": props},
	}
	if enabled {
		src.Enabled = []string{"idp1"}
	}

	users := memory.NewMemoryUserRepository()
	seedAdmin(t, users)
	m := metrics.NewAuthMetrics(prometheus.NewRegistry())

	auth := service.NewAuthenticator(
		src,
		service.NewClaimsExtractor(http.DefaultClient, verifier, callTimeout),
		service.NewPolicyEnforcer(),
		service.NewIdentityResolver(users, "admin", callTimeout),
		m,
		callTimeout,
	)
	return &authFixture{auth: auth, users: users, metrics: m}
}

func okOrgProps() map[string]string {
	return map[string]string{
		config.PropAllowedEmailDomains:      "ok.org",
		config.PropShouldFilterEmailDomains: "true",
		config.PropUserAutoEnabled:          "true",
		config.PropForceUserCreate:          "true",
	}
}

func idTokenFor(t *testing.T, claims jwt.MapClaims) *oauth2.Token {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("idp-secret"))
	require.NoError(t, err)
	return (&oauth2.Token{AccessToken: "at", TokenType: "Bearer"}).WithExtra(map[string]any{"id_token": raw})
}

func staticTokens(token *oauth2.Token) service.TokenAcquirer {
	return service.TokenAcquirerFunc(func(ctx context.Context) (*oauth2.Token, error) {
		return token, nil
	})
}

// --- Scenarios ---

func TestAuthenticator_AllowedDomainProvisionsUser(t *testing.T) {
	f := newAuthFixture(t, okOrgProps(), true, time.Second)
	ctx := context.Background()

	outcome := f.auth.Authenticate(ctx, service.AuthAttempt{
		ProviderID: "idp1",
		Tokens:     staticTokens(idTokenFor(t, jwt.MapClaims{"sub": "u1", "email": "a@ok.org"})),
	})

	require.True(t, outcome.IsAuthenticated(), "outcome: %s", outcome.Label())
	assert.Equal(t, "u1", outcome.User.Username)
	assert.Equal(t, "a@ok.org", outcome.User.Email)
	assert.True(t, outcome.User.Enabled)
	assert.Equal(t, "idp1", outcome.ProviderID)
	assert.True(t, outcome.NewUser)
	assert.True(t, outcome.Persisted)

	saved, err := f.users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, saved.Enabled)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AttemptsTotal.WithLabelValues("idp1", "authenticated", "")))
}

func TestAuthenticator_DisallowedDomainIsDenied(t *testing.T) {
	f := newAuthFixture(t, okOrgProps(), true, time.Second)
	ctx := context.Background()

	outcome := f.auth.Authenticate(ctx, service.AuthAttempt{
		ProviderID: "idp1",
		Tokens:     staticTokens(idTokenFor(t, jwt.MapClaims{"sub": "u1", "email": "a@bad.org"})),
	})

	require.True(t, outcome.IsRejected())
	assert.Equal(t, models.ReasonPolicyDenied, outcome.Reason)
	assert.Equal(t, models.CauseDomainNotAllowed, outcome.Cause)
	assert.Equal(t, "a@bad.org", outcome.Email)
	assert.Equal(t, "u1", outcome.Username)

	_, err := f.users.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrUserNotFound, "no user may be created on policy denial")
}

func TestAuthenticator_ProviderDisabled(t *testing.T) {
	f := newAuthFixture(t, okOrgProps(), false, time.Second)

	outcome := f.auth.Authenticate(context.Background(), service.AuthAttempt{
		ProviderID: "idp1",
		Tokens:     staticTokens(idTokenFor(t, jwt.MapClaims{"sub": "u1", "email": "a@ok.org"})),
	})

	require.True(t, outcome.IsRejected())
	assert.Equal(t, models.ReasonPolicyDenied, outcome.Reason)
	assert.Equal(t, models.CauseProviderDisabled, outcome.Cause)
}

func TestAuthenticator_UnknownProviderIsDisabled(t *testing.T) {
	f := newAuthFixture(t, okOrgProps(), true, time.Second)

	outcome := f.auth.Authenticate(context.Background(), service.AuthAttempt{
		ProviderID: "nobody",
		Tokens:     staticTokens(idTokenFor(t, jwt.MapClaims{"sub": "u1", "email": "a@ok.org"})),
	})

	require.True(t, outcome.IsRejected())
	assert.Equal(t, models.CauseProviderDisabled, outcome.Cause)
	assert.Equal(t, "nobody", outcome.ProviderID)
}

// --- Token acquisition ---

func TestAuthenticator_TokenAcquisition(t *testing.T) {
	f := newAuthFixture(t, okOrgProps(), true, 50*time.Millisecond)
	ctx := context.Background()

	t.Run("Error", func(t *testing.T) {
		tokens := new(mocks.MockTokenAcquirer)
		tokens.On("AcquireToken", mock.Anything).Return(nil, errors.New("invalid_grant")).Once()

		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{ProviderID: "idp1", Tokens: tokens})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.ReasonTokenAcquisitionFailed, outcome.Reason)
		tokens.AssertExpectations(t)
	})

	t.Run("Panic", func(t *testing.T) {
		tokens := service.TokenAcquirerFunc(func(ctx context.Context) (*oauth2.Token, error) {
			panic("collaborator blew up")
		})

		var outcome models.AuthOutcome
		require.NotPanics(t, func() {
			outcome = f.auth.Authenticate(ctx, service.AuthAttempt{ProviderID: "idp1", Tokens: tokens})
		})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.ReasonTokenAcquisitionFailed, outcome.Reason)
	})

	t.Run("NoAcquirer", func(t *testing.T) {
		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{ProviderID: "idp1"})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.ReasonTokenAcquisitionFailed, outcome.Reason)
	})

	t.Run("Timeout", func(t *testing.T) {
		tokens := service.TokenAcquirerFunc(func(ctx context.Context) (*oauth2.Token, error) {
			<-ctx.Done()
			return nil, errors.New("oauth2: cannot fetch token: request canceled")
		})

		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{ProviderID: "idp1", Tokens: tokens})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.ReasonTimeout, outcome.Reason)
	})

	t.Run("CallerCancellationIsIgnored", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		tokens := service.TokenAcquirerFunc(func(ctx context.Context) (*oauth2.Token, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return idTokenFor(t, jwt.MapClaims{"sub": "u2", "email": "b@ok.org"}), nil
		})

		outcome := f.auth.Authenticate(cancelled, service.AuthAttempt{ProviderID: "idp1", Tokens: tokens})
		assert.True(t, outcome.IsAuthenticated(), "outcome: %s", outcome.Label())
	})
}

// --- Extraction ---

func TestAuthenticator_Extraction(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingIDToken", func(t *testing.T) {
		f := newAuthFixture(t, okOrgProps(), true, time.Second)
		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{
			ProviderID: "idp1",
			Tokens:     staticTokens(&oauth2.Token{AccessToken: "at"}),
		})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.ReasonExtractionFailed, outcome.Reason)
		assert.Equal(t, models.CauseMissingOrInvalidToken, outcome.Cause)
	})

	t.Run("MissingEmail", func(t *testing.T) {
		f := newAuthFixture(t, okOrgProps(), true, time.Second)
		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{
			ProviderID: "idp1",
			Tokens:     staticTokens(idTokenFor(t, jwt.MapClaims{"sub": "u1"})),
		})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.ReasonExtractionFailed, outcome.Reason)
		assert.Equal(t, models.CauseMissingIdentityClaims, outcome.Cause)
	})

	t.Run("UserInfoFailure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		props := okOrgProps()
		props[config.PropUserInfoURI] = server.URL
		f := newAuthFixture(t, props, true, time.Second)

		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{
			ProviderID: "idp1",
			Tokens:     staticTokens(idTokenFor(t, jwt.MapClaims{"sub": "u1", "email": "a@ok.org"})),
		})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.ReasonExtractionFailed, outcome.Reason)
		assert.Equal(t, models.CauseUserInfoFetchFailed, outcome.Cause)
	})

	t.Run("UserInfoEmailDecidesPolicy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"email":"a@bad.org"}`))
		}))
		defer server.Close()

		props := okOrgProps()
		props[config.PropUserInfoURI] = server.URL
		f := newAuthFixture(t, props, true, time.Second)

		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{
			ProviderID: "idp1",
			Tokens:     staticTokens(idTokenFor(t, jwt.MapClaims{"sub": "u1", "email": "a@ok.org"})),
		})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.CauseDomainNotAllowed, outcome.Cause)
	})

	t.Run("UserInfoTimeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		props := okOrgProps()
		props[config.PropUserInfoURI] = server.URL
		f := newAuthFixture(t, props, true, 50*time.Millisecond)

		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{
			ProviderID: "idp1",
			Tokens:     staticTokens(idTokenFor(t, jwt.MapClaims{"sub": "u1", "email": "a@ok.org"})),
		})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.ReasonTimeout, outcome.Reason)
	})
}

// --- Resolution ---

func TestAuthenticator_ExistingDisabledUserIsPending(t *testing.T) {
	f := newAuthFixture(t, okOrgProps(), true, time.Second)
	ctx := context.Background()
	require.NoError(t, f.users.SaveUser(ctx, &models.LocalUser{Username: "u1", Email: "a@ok.org"}, nil, false, models.EventDetails{}))

	outcome := f.auth.Authenticate(ctx, service.AuthAttempt{
		ProviderID: "idp1",
		Tokens:     staticTokens(idTokenFor(t, jwt.MapClaims{"sub": "u1", "email": "a@ok.org"})),
	})

	require.True(t, outcome.IsPending())
	assert.Equal(t, "u1", outcome.User.Username)
	assert.False(t, outcome.NewUser)
}

func TestAuthenticator_IDTokenVerification(t *testing.T) {
	ctx := context.Background()
	verifyingProps := func() map[string]string {
		props := okOrgProps()
		props[config.PropVerifyIDToken] = "true"
		return props
	}
	token := idTokenFor(t, jwt.MapClaims{"sub": "u1", "email": "a@ok.org"})
	rawIDToken := token.Extra("id_token").(string)

	t.Run("Verified", func(t *testing.T) {
		verifier := new(mocks.MockIDTokenVerifier)
		verifier.On("VerifyIDToken", "idp1", rawIDToken).Return(nil).Once()
		f := newAuthFixtureWithVerifier(t, verifyingProps(), true, time.Second, verifier)

		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{ProviderID: "idp1", Tokens: staticTokens(token)})
		require.True(t, outcome.IsAuthenticated(), "outcome: %s", outcome.Label())
		verifier.AssertExpectations(t)
	})

	t.Run("Rejected", func(t *testing.T) {
		verifier := new(mocks.MockIDTokenVerifier)
		verifier.On("VerifyIDToken", "idp1", rawIDToken).Return(errors.New("oidc: id token issued by a different provider")).Once()
		f := newAuthFixtureWithVerifier(t, verifyingProps(), true, time.Second, verifier)

		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{ProviderID: "idp1", Tokens: staticTokens(token)})
		require.True(t, outcome.IsRejected())
		assert.Equal(t, models.ReasonExtractionFailed, outcome.Reason)
		assert.Equal(t, models.CauseMissingOrInvalidToken, outcome.Cause)

		_, err := f.users.GetUser(ctx, "u1")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
		verifier.AssertExpectations(t)
	})

	t.Run("NotRequested", func(t *testing.T) {
		verifier := new(mocks.MockIDTokenVerifier)
		f := newAuthFixtureWithVerifier(t, okOrgProps(), true, time.Second, verifier)

		outcome := f.auth.Authenticate(ctx, service.AuthAttempt{ProviderID: "idp1", Tokens: staticTokens(token)})
		require.True(t, outcome.IsAuthenticated())
		verifier.AssertNotCalled(t, "VerifyIDToken", mock.Anything, mock.Anything)
	})
}
