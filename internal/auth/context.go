package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/models"
)

func roleOf(s string) models.Role {
	r, _ := models.ParseRole(s)
	return r
}

// SetIdentity stores id on the echo context the way handlers read it back.
func SetIdentity(c echo.Context, id Identity) {
	c.Set("user_id", id.UserID)
	c.Set("role", string(id.Role))
}

// FromContext returns the identity set by the JWT middleware.
func FromContext(c echo.Context) (Identity, bool) {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return Identity{}, false
	}
	role, _ := c.Get("role").(string)
	return Identity{UserID: userID, Role: roleOf(role)}, true
}
