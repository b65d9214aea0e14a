package router

import (
	"github.com/labstack/echo/v4"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/handlers"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/middleware"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/service"
)

func SetupOpenIDRoutes(app *echo.Echo, openIDHandler *handlers.OpenIDHandler) {
	api := app.Group("/api/auth/openid")
	api.GET("/:provider/login", openIDHandler.Login) // Redirect to the provider
	api.GET("/callback", openIDHandler.Callback)     // Provider redirects back here
}

func SetupUserRoutes(app *echo.Echo, userHandler *handlers.UserHandler, sessions service.SessionGenerator) {
	app.GET("/api/auth/me", userHandler.Me, middleware.SessionMiddleware(sessions))
}
