package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	var online, providers, expiring int
	if h.Presence != nil {
		online = h.Presence.Online()
	}
	if ps, err := h.Users.ListOnlineProviders(ctx); err == nil {
		providers = len(ps)
	}
	if reqs, err := h.Market.PendingExpiry(ctx); err == nil {
		expiring = len(reqs)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"connections":      online,
		"online_providers": providers,
		"pending_expiry":   expiring,
	})
}
