package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"
)

type UserHandler struct {
	Users repository.UserRepository
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users repository.UserRepository) *UserHandler {
	return &UserHandler{Users: users}
}

// Me returns the signed-in user. The session middleware stores the claims under "user".
func (h *UserHandler) Me(c echo.Context) error {
	claims, ok := c.Get("user").(*service.SessionClaims)
	if !ok || claims == nil {
		// This case should ideally be caught by middleware, returning 401.
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated: context missing user information")
	}

	user, err := h.Users.GetUser(c.Request().Context(), claims.Subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}
	if err != nil {
		log.Error().Err(err).Str("username", claims.Subject).Msg("Failed to load user")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load user")
	}
	if !user.Enabled {
		return echo.NewHTTPError(http.StatusForbidden, "contact admin to enable your account")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user":      user,
		"provider":  claims.ProviderID,
		"expiresAt": claims.ExpiresAt,
	})
}
