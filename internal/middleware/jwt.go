package middleware

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"
)

// ContextKey is where the validated *service.SessionClaims are stored.
const ContextKey = "user"

// SessionMiddleware validates the bearer session token issued after OpenID sign-in.
func SessionMiddleware(sessions service.SessionGenerator) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey: ContextKey,
		ParseTokenFunc: func(c echo.Context, auth string) (any, error) {
			claims, err := sessions.ValidateToken(auth)
			if err != nil {
				return nil, err
			}
			return claims, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			log.Debug().Err(err).Str("path", c.Path()).Msg("Rejected session token")
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "invalid_session",
				Message: "Missing or invalid session token",
			})
		},
	})
}
