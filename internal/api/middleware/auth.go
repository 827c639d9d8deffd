package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/marketbots/marketcore/pkg/utils/response"
)

// AuthMiddleware creates a new authorization middleware that checks the
// Authorization header against the configured API key. An empty configured
// key disables the check.
func AuthMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			auth := c.Request().Header.Get("Authorization")
			if auth == "" {
				return response.ErrorResponse(c, http.StatusUnauthorized, response.ErrTypeAuthorization, "Missing Authorization header")
			}

			if subtle.ConstantTimeCompare([]byte(auth), []byte(apiKey)) != 1 {
				return response.ErrorResponse(c, http.StatusUnauthorized, response.ErrTypeAuthorization, "Invalid API key")
			}

			return next(c)
		}
	}
}
