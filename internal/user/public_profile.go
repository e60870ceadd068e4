package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

// PublicProfile is what any signed-in user may see about a provider.
type PublicProfile struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Skills []string `json:"skills"`
	Rate   *float64 `json:"rate,omitempty"`
	Online bool     `json:"online"`
}

// GET /providers/:id
func (h *Handler) GetPublicProfile(c echo.Context) error {
	u, err := h.Users.GetUser(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && (u.Role != models.RoleServiceProvider || u.Banned)) {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "error": "provider not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to load profile"})
	}
	skills := u.Skills
	if skills == nil {
		skills = []string{}
	}
	return c.JSON(http.StatusOK, PublicProfile{ID: u.ID, Name: u.Name, Skills: skills, Rate: u.Rate, Online: u.Online})
}
