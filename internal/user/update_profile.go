// Package user serves profile reads and edits for mirrored identities.
package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/auth"
	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

type Handler struct {
	Users store.Users
}

func (h *Handler) Register(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.PATCH("/me/profile", h.UpdateProfile, m...)
	g.GET("/providers/:id", h.GetPublicProfile, m...)
}

// UpdateProfileRequest leaves a field unchanged when it is omitted.
type UpdateProfileRequest struct {
	Name   *string   `json:"name"`
	Skills *[]string `json:"skills"`
	Rate   *float64  `json:"rate"`
}

// PATCH /me/profile
func (h *Handler) UpdateProfile(c echo.Context) error {
	id, ok := auth.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid or missing token"})
	}

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request"})
	}
	if (req.Skills != nil || req.Rate != nil) && id.Role != models.RoleServiceProvider {
		return c.JSON(http.StatusForbidden, echo.Map{"success": false, "error": "only service providers have skills and rates"})
	}
	if req.Rate != nil && *req.Rate < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "rate must not be negative"})
	}

	ctx := c.Request().Context()
	u, err := h.Users.GetUser(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to load user"})
	}
	if req.Name != nil && *req.Name != "" {
		u.Name = *req.Name
	}
	if req.Skills != nil {
		u.Skills = models.NormalizeSkills(*req.Skills)
	}
	if req.Rate != nil {
		u.Rate = req.Rate
	}
	if err := h.Users.UpsertUser(ctx, u); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to update profile"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "profile updated successfully",
		"user":    u,
	})
}
