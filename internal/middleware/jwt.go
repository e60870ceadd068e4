package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/auth"
	"github.com/sudo-init-do/handyhub/internal/models"
)

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// JWTMiddleware verifies the Authorization bearer token and stores user_id
// and role on the context.
func JWTMiddleware(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.BearerToken(c.Request().Header.Get("Authorization"))
			if token == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "missing Authorization header"})
			}
			id, err := a.Authenticate(c.Request().Context(), token)
			if err != nil {
				switch models.KindOf(err) {
				case models.KindForbidden:
					return c.JSON(http.StatusForbidden, echo.Map{"success": false, "error": err.Error()})
				case "":
					return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "authentication failed"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": err.Error()})
			}
			auth.SetIdentity(c, id)
			return next(c)
		}
	}
}
