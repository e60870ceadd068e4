package alerts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

// Handler serves the notification feed.
type Handler struct {
	Store store.Notifications
}

func (h *Handler) Register(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/notifications", h.ListNotifications, m...)
	g.GET("/notifications/unread", h.UnreadCount, m...)
	g.POST("/notifications/:id/read", h.MarkNotificationRead, m...)
	g.POST("/notifications/read-all", h.MarkAllRead, m...)
}

// ListNotifications returns current user's notifications, newest first
func (h *Handler) ListNotifications(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.Store.ListNotifications(c.Request().Context(), userID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to load notifications"})
	}
	if items == nil {
		items = []models.Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": items})
}

// UnreadCount returns how many notifications are still unread
func (h *Handler) UnreadCount(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
	}
	n, err := h.Store.CountUnreadNotifications(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to count notifications"})
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": n})
}

// MarkNotificationRead marks specific notification as read
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
	}
	nid := c.Param("id")
	if nid == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "missing notification id"})
	}
	err := h.Store.MarkNotificationRead(c.Request().Context(), nid, userID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "error": "notification not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to update"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// MarkAllRead marks every unread notification of the caller as read
func (h *Handler) MarkAllRead(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
	}
	n, err := h.Store.MarkAllNotificationsRead(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to update"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "updated": n})
}
