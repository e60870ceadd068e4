package messaging

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/utils"
)

// Handler serves chat over HTTP for clients that are not on the socket.
type Handler struct {
	Service *Service
}

func (h *Handler) Register(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/chats", h.ListChats, m...)
	g.GET("/bookings/:id/messages", h.ListMessages, m...)
	g.POST("/bookings/:id/messages", h.SendMessage, m...)
	g.POST("/bookings/:id/messages/seen", h.MarkSeen, m...)
}

// SendMessage - requester or provider sends a message in a booking room
func (h *Handler) SendMessage(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var body struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid payload"})
	}
	m, err := h.Service.SendMessage(c.Request().Context(), userID, c.Param("id"), body.Body)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// ListMessages - get the conversation for a booking
func (h *Handler) ListMessages(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	msgs, err := h.Service.History(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// MarkSeen - reader marks every message in the booking room as seen
func (h *Handler) MarkSeen(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	changed, err := h.Service.MarkSeen(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "updated": len(changed)})
}

// ListChats - bookings of the caller with last message and unread count
func (h *Handler) ListChats(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	chats, err := h.Service.ListChats(c.Request().Context(), userID)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"chats": chats})
}
