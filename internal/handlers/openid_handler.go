package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"
)

// OpenIDHandler handles the browser side of OpenID sign-in
type OpenIDHandler struct {
	Flow     service.OAuthFlow
	Auth     service.AuthGenerator
	Sessions service.SessionGenerator
	States   repository.StateRepository
	Users    repository.UserRepository
	Config   *config.Config
}

// NewOpenIDHandler creates a new instance of OpenIDHandler
func NewOpenIDHandler(
	flow service.OAuthFlow,
	auth service.AuthGenerator,
	sessions service.SessionGenerator,
	states repository.StateRepository,
	users repository.UserRepository,
	cfg *config.Config,
) *OpenIDHandler {
	return &OpenIDHandler{
		Flow:     flow,
		Auth:     auth,
		Sessions: sessions,
		States:   states,
		Users:    users,
		Config:   cfg,
	}
}

// Login starts the authorization code flow for the provider in the path
func (h *OpenIDHandler) Login(c echo.Context) error {
	providerID := c.Param("provider")
	ctx := c.Request().Context()

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	authURL, err := h.Flow.AuthCodeURL(ctx, providerID, state, verifier)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerID).Msg("Cannot build authorization URL")
		if errors.Is(err, service.ErrProviderNotConfigured) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "unknown_provider",
				Message: "Unknown OpenID provider",
			})
		}
		return c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "provider_unavailable",
			Message: "OpenID provider is unavailable",
		})
	}

	expiry := time.Now().UTC().Add(h.Config.Auth.StateExpiry)
	err = h.States.StoreLoginState(ctx, models.LoginState{
		State:        state,
		ProviderID:   providerID,
		CodeVerifier: verifier,
		Expiry:       expiry,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to store login state")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start login")
	}

	c.SetCookie(&http.Cookie{
		Name:     h.Config.StateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  expiry,
		HttpOnly: true,
		Secure:   c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	})

	log.Debug().Str("provider", providerID).Msg("Redirecting user to provider")
	return c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// Callback handles the redirect back from the provider. The provider is taken from
// the stored login state, never from the request.
func (h *OpenIDHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	queryState := c.QueryParam("state")
	cookieState := ""
	if cookie, err := c.Cookie(h.Config.StateCookieName); err == nil {
		cookieState = cookie.Value
	}

	// Clear the state cookie immediately after reading
	c.SetCookie(&http.Cookie{
		Name:     h.Config.StateCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-1 * time.Hour),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	})

	if queryState == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "State parameter missing")
	}
	if cookieState == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "State cookie missing or expired")
	}
	if queryState != cookieState {
		log.Warn().Msg("Callback state mismatch")
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid state parameter")
	}

	loginState, err := h.States.ConsumeLoginState(ctx, queryState)
	if errors.Is(err, repository.ErrStateNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired state")
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load login state")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load login state")
	}

	code := c.QueryParam("code")
	if code == "" {
		log.Warn().
			Str("provider", loginState.ProviderID).
			Str("error", c.QueryParam("error")).
			Str("errorDescription", c.QueryParam("error_description")).
			Msg("Authorization code missing in callback")
		return echo.NewHTTPError(http.StatusBadRequest, "Authorization code missing or error occurred during login")
	}

	outcome := h.Auth.Authenticate(ctx, service.AuthAttempt{
		ProviderID: loginState.ProviderID,
		Tokens:     h.Flow.Exchange(loginState.ProviderID, code, loginState.CodeVerifier),
	})
	return h.respond(c, outcome)
}

func (h *OpenIDHandler) respond(c echo.Context, outcome models.AuthOutcome) error {
	switch {
	case outcome.IsAuthenticated():
		return h.signIn(c, outcome)
	case outcome.IsPending():
		return c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:    "account_pending_enablement",
			Message:  "contact admin to enable your account",
			Username: outcome.Username,
			Email:    outcome.Email,
		})
	}

	switch outcome.Reason {
	case models.ReasonPolicyDenied:
		return c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:    "account_not_permitted",
			Message:  "This account may not sign in with this provider",
			Reason:   outcome.Label(),
			Username: outcome.Username,
			Email:    outcome.Email,
		})
	case models.ReasonTimeout:
		return c.JSON(http.StatusGatewayTimeout, models.ErrorResponse{
			Error:   "provider_timeout",
			Message: "The identity provider did not answer in time",
			Reason:  outcome.Label(),
		})
	default:
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "authentication_failed",
			Message: "Authentication failed",
			Reason:  outcome.Label(),
		})
	}
}

// signIn saves a user whose save was deferred to the caller, then issues a session.
func (h *OpenIDHandler) signIn(c echo.Context, outcome models.AuthOutcome) error {
	ctx := c.Request().Context()
	user := outcome.User

	switch {
	case !outcome.NewUser || outcome.Persisted:
		// nothing to save
	case outcome.EagerSave:
		// the pipeline already tried and logged the failure; the login still goes ahead
		log.Warn().Str("username", user.Username).Msg("Signing in a new user that was not saved")
	default:
		err := h.Users.CreateUser(ctx, user, nil, false, models.EventDetails{})
		if err != nil && !errors.Is(err, repository.ErrUserExists) {
			log.Error().Err(err).Str("username", user.Username).Msg("Failed to save new user")
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save user")
		}
	}

	token, expiry, err := h.Sessions.GenerateToken(user, outcome.ProviderID)
	if err != nil {
		log.Error().Err(err).Str("username", user.Username).Msg("Failed to issue session token")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to issue session token")
	}

	log.Info().Str("username", user.Username).Str("provider", outcome.ProviderID).Msg("User signed in")
	return c.JSON(http.StatusOK, models.LoginResponse{
		Message:     "Login successful!",
		Token:       token,
		TokenExpiry: expiry,
		User:        user,
	})
}
