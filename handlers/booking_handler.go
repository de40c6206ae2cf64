package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/shopspring/decimal"

	"booking-system/services"
)

type BookingHandler struct {
	ledger *services.BookingLedger
}

func NewBookingHandler(ledger *services.BookingLedger) *BookingHandler {
	return &BookingHandler{ledger: ledger}
}

type createBookingRequest struct {
	UserID  string   `json:"user_id"`
	EventID string   `json:"event_id"`
	Seats   []string `json:"seats"`
	Amount  string   `json:"amount"`
}

// CreateBooking - lock seats and persist a pending draft
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid amount"})
	}

	booking, err := h.ledger.CreateDraft(c.Request().Context(), req.UserID, req.EventID, req.Seats, amount)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"booking_id": booking.ID,
		"status":     booking.Status,
		"seats":      booking.Seats(),
		"amount":     booking.Amount,
	})
}

// GetBooking - booking details
func (h *BookingHandler) GetBooking(c echo.Context) error {
	booking, err := h.ledger.Get(c.Request().Context(), c.PathParam("bookingId"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"booking_id": booking.ID,
		"user_id":    booking.UserID,
		"event_id":   booking.EventID,
		"seats":      booking.Seats(),
		"amount":     booking.Amount,
		"status":     booking.Status,
	})
}

// ListBookings - booking history for a user
func (h *BookingHandler) ListBookings(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	bookings, err := h.ledger.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"bookings": bookings})
}

type cancelBookingRequest struct {
	UserID string `json:"user_id"`
}

// CancelBooking - cancel a pending booking and free its seats
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	var req cancelBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := h.ledger.Cancel(c.Request().Context(), c.PathParam("bookingId"), req.UserID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Booking cancelled"})
}
