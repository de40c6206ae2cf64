package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"booking-system/services"
)

type SeatHandler struct {
	locks   *services.SeatLockManager
	lockTTL time.Duration
}

func NewSeatHandler(locks *services.SeatLockManager, lockTTL time.Duration) *SeatHandler {
	return &SeatHandler{locks: locks, lockTTL: lockTTL}
}

type seatBatchRequest struct {
	EventID string   `json:"event_id"`
	Seats   []string `json:"seats"`
	OwnerID string   `json:"owner_id"`
}

// LockSeats - acquire a batch of seat locks, all or nothing
func (h *SeatHandler) LockSeats(c echo.Context) error {
	var req seatBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	result, err := h.locks.Lock(c.Request().Context(), req.EventID, req.Seats, req.OwnerID, h.lockTTL)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Lock store unavailable"})
	}

	return c.JSON(http.StatusOK, result)
}

// ReleaseSeats - release seats owned by the caller
func (h *SeatHandler) ReleaseSeats(c echo.Context) error {
	var req seatBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	result, err := h.locks.Release(c.Request().Context(), req.EventID, req.Seats, req.OwnerID)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Lock store unavailable"})
	}

	return c.JSON(http.StatusOK, result)
}

// ExtendSeats - refresh lock TTLs for seats owned by the caller
func (h *SeatHandler) ExtendSeats(c echo.Context) error {
	var req seatBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	result, err := h.locks.Extend(c.Request().Context(), req.EventID, req.Seats, req.OwnerID, h.lockTTL)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Lock store unavailable"})
	}

	return c.JSON(http.StatusOK, result)
}

// GetSeatLocks - read-only probe of lock state
func (h *SeatHandler) GetSeatLocks(c echo.Context) error {
	eventID := c.PathParam("eventId")
	seats := c.QueryParams()["seat"]

	probe, err := h.locks.IsLocked(c.Request().Context(), eventID, seats)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Lock store unavailable"})
	}

	return c.JSON(http.StatusOK, probe)
}
