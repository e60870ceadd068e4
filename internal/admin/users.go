package admin

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
	"github.com/sudo-init-do/handyhub/internal/utils"
)

// GET /admin/users/:id
func (h *Handler) GetUser(c echo.Context) error {
	u, err := h.Users.GetUser(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "error": "user not found"})
	}
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// POST /admin/users/:id/suspend
func (h *Handler) SuspendUser(c echo.Context) error {
	return h.setBanned(c, true)
}

// POST /admin/users/:id/reinstate
func (h *Handler) ReinstateUser(c echo.Context) error {
	return h.setBanned(c, false)
}

// setBanned flips the ban flag. A suspended user drops out of presence so
// matching stops offering them work; new connections are refused at
// authentication.
func (h *Handler) setBanned(c echo.Context, banned bool) error {
	ctx := c.Request().Context()
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "user id required"})
	}
	u, err := h.Users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "error": "user not found"})
	}
	if err != nil {
		return utils.Fail(c, err)
	}
	if u.Role == models.RoleAdmin && banned {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "admins cannot be suspended"})
	}
	u.Banned = banned
	if banned {
		u.Online = false
	}
	if err := h.Users.UpsertUser(ctx, u); err != nil {
		return utils.Fail(c, err)
	}
	if banned && h.Presence != nil {
		h.Presence.Unregister(ctx, userID)
	}
	msg := "user reinstated"
	if banned {
		msg = "user suspended"
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msg, "user_id": userID})
}
