package marketplace

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/auth"
	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/utils"
)

// Handler exposes the request and booking lifecycle over HTTP.
type Handler struct {
	Service *Service
}

func (h *Handler) Register(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.POST("/requests", h.CreateRequest, m...)
	g.GET("/requests/mine", h.ListMyRequests, m...)
	g.GET("/requests/matching", h.ListMatching, m...)
	g.GET("/requests/offers", h.ListOffers, m...)
	g.GET("/requests/:id", h.GetRequest, m...)
	g.PATCH("/requests/:id", h.UpdateRequest, m...)
	g.POST("/requests/:id/accept", h.Accept, m...)
	g.POST("/requests/:id/offer", h.Offer, m...)
	g.POST("/requests/:id/accept-offer", h.AcceptOffer, m...)
	g.POST("/requests/:id/reject-offer", h.RejectOffer, m...)
	g.POST("/requests/:id/cancel", h.CancelRequest, m...)

	g.GET("/bookings", h.ListBookings, m...)
	g.GET("/bookings/:id", h.GetBooking, m...)
	g.POST("/bookings/:id/complete", h.CompleteBooking, m...)
	g.POST("/bookings/:id/cancel", h.CancelBooking, m...)
	g.PATCH("/bookings/:id/status", h.UpdateBookingStatus, m...)
}

// =========================
// Requests
// =========================

// CreateRequest - community member posts a new service request
func (h *Handler) CreateRequest(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var in RequestInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request body"})
	}
	r, err := h.Service.CreateRequest(c.Request().Context(), actor, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// UpdateRequest - requester edits a request that is still Waiting
func (h *Handler) UpdateRequest(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var in RequestInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request body"})
	}
	r, err := h.Service.UpdateRequest(c.Request().Context(), actor, c.Param("id"), in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListMatching(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	rs, err := h.Service.ListMatching(c.Request().Context(), actor)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": rs})
}

func (h *Handler) ListOffers(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	rs, err := h.Service.ListOffers(c.Request().Context(), actor)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": rs})
}

func (h *Handler) ListMyRequests(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	rs, err := h.Service.ListMyRequests(c.Request().Context(), actor)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": rs})
}

func (h *Handler) GetRequest(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	r, err := h.Service.GetRequest(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Offer - requester reserves the request for one provider
func (h *Handler) Offer(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var req struct {
		ProviderID string `json:"provider_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request body"})
	}
	r, err := h.Service.OfferToProvider(c.Request().Context(), actor, c.Param("id"), req.ProviderID)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Accept - provider takes an open request; a booking is created
func (h *Handler) Accept(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	r, b, err := h.Service.Accept(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "request": r, "booking": b})
}

func (h *Handler) AcceptOffer(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	r, b, err := h.Service.AcceptOffer(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "request": r, "booking": b})
}

func (h *Handler) RejectOffer(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	r, err := h.Service.RejectOffer(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "request": r})
}

func (h *Handler) CancelRequest(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	r, err := h.Service.CancelRequest(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "request": r})
}

// =========================
// Bookings
// =========================

func (h *Handler) ListBookings(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	bs, err := h.Service.ListBookings(c.Request().Context(), actor)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bs})
}

// ListAllBookings - admin view of recent bookings
func (h *Handler) ListAllBookings(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	bs, err := h.Service.ListAllBookings(c.Request().Context(), actor, limit)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bs})
}

func (h *Handler) GetBooking(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	b, err := h.Service.GetBooking(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// CompleteBooking - assigned provider closes the booking with proof
func (h *Handler) CompleteBooking(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var req struct {
		Proof   []string `json:"proof"`
		Comment string   `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request body"})
	}
	b, err := h.Service.CompleteBooking(c.Request().Context(), actor, c.Param("id"), req.Proof, req.Comment)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "booking": b})
}

func (h *Handler) CancelBooking(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	b, err := h.Service.CancelBooking(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "booking": b})
}

func (h *Handler) UpdateBookingStatus(c echo.Context) error {
	actor, ok := auth.FromContext(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid status"})
	}
	b, err := h.Service.UpdateBookingStatus(c.Request().Context(), actor, c.Param("id"), models.BookingStatus(req.Status))
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "booking": b})
}
