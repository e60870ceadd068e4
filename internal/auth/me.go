package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/store"
)

type Handler struct {
	Users   store.Users
	Tickets *Tickets
}

// Me returns the currently authenticated user's profile
func (h *Handler) Me(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
	}
	u, err := h.Users.GetUser(c.Request().Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to load user"})
	}
	return c.JSON(http.StatusOK, u)
}

// IssueTicket hands out a one-time websocket connect ticket.
func (h *Handler) IssueTicket(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	role, _ := c.Get("role").(string)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
	}
	value, expires, err := h.Tickets.Issue(Identity{UserID: userID, Role: roleOf(role)})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "ticket generation failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"ticket":     value,
		"expires_at": expires.UTC(),
		"expires_in": int(h.Tickets.TTL().Seconds()),
	})
}
