package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"booking-system/services"
)

type PaymentHandler struct {
	payments *services.PaymentStateMachine
}

func NewPaymentHandler(payments *services.PaymentStateMachine) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type initializePaymentRequest struct {
	BookingID string `json:"booking_id"`
	Method    string `json:"method"`
}

// InitializePayment - create the payment record for a pending booking
func (h *PaymentHandler) InitializePayment(c echo.Context) error {
	var req initializePaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	payment, err := h.payments.Initialize(c.Request().Context(), req.BookingID, req.Method)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"payment_id": payment.ID,
		"booking_id": payment.BookingID,
		"amount":     payment.Amount,
		"status":     payment.Status,
	})
}

type submitReferenceRequest struct {
	ReferenceCode string `json:"reference_code"`
}

// SubmitReference - attach the customer's proof of transfer
func (h *PaymentHandler) SubmitReference(c echo.Context) error {
	var req submitReferenceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	payment, err := h.payments.SubmitReference(c.Request().Context(), c.PathParam("paymentId"), req.ReferenceCode)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
}

// GetPayment - payment details
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	payment, err := h.payments.Get(c.Request().Context(), c.PathParam("paymentId"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"payment_id":     payment.ID,
		"booking_id":     payment.BookingID,
		"amount":         payment.Amount,
		"method":         payment.Method,
		"status":         payment.Status,
		"reference_code": payment.ReferenceCode.String,
	})
}
