// Package admin serves the moderation endpoints mounted under /admin.
package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/auth"
	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
	"github.com/sudo-init-do/handyhub/internal/utils"
)

// Market is the slice of the marketplace service admins drive.
type Market interface {
	CancelRequest(ctx context.Context, actor auth.Identity, id string) (models.ServiceRequest, error)
	ListAllBookings(ctx context.Context, actor auth.Identity, limit int) ([]models.Booking, error)
	Sweep(ctx context.Context) (int, error)
	PendingExpiry(ctx context.Context) ([]models.ServiceRequest, error)
}

type Presence interface {
	Online() int
	Unregister(ctx context.Context, id string)
}

type Handler struct {
	Market   Market
	Users    store.Users
	Presence Presence
}

// Register mounts the admin routes. g must already be guarded.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/bookings", h.ListBookings)
	g.POST("/requests/:id/cancel", h.CancelRequest)
	g.GET("/requests/expiring", h.ListExpiring)
	g.POST("/sweep", h.Sweep)
	g.GET("/users/:id", h.GetUser)
	g.POST("/users/:id/suspend", h.SuspendUser)
	g.POST("/users/:id/reinstate", h.ReinstateUser)
	g.GET("/stats", h.Stats)
}

// GET /admin/bookings
func (h *Handler) ListBookings(c echo.Context) error {
	id, _ := auth.FromContext(c)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	bookings, err := h.Market.ListAllBookings(c.Request().Context(), id, limit)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bookings})
}

// POST /admin/requests/:id/cancel
func (h *Handler) CancelRequest(c echo.Context) error {
	id, _ := auth.FromContext(c)
	r, err := h.Market.CancelRequest(c.Request().Context(), id, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "request": r})
}

// GET /admin/requests/expiring
func (h *Handler) ListExpiring(c echo.Context) error {
	reqs, err := h.Market.PendingExpiry(c.Request().Context())
	if err != nil {
		return utils.Fail(c, err)
	}
	if reqs == nil {
		reqs = []models.ServiceRequest{}
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": reqs})
}

// POST /admin/sweep
func (h *Handler) Sweep(c echo.Context) error {
	n, err := h.Market.Sweep(c.Request().Context())
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "expired": n})
}
