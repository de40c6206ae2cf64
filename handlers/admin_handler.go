package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/pocketbase/dbx"

	"booking-system/models"
	"booking-system/services"
)

type AdminHandler struct {
	payments *services.PaymentStateMachine
	issuance *services.TicketIssuanceQueue
	db       *dbx.DB
}

func NewAdminHandler(payments *services.PaymentStateMachine, issuance *services.TicketIssuanceQueue, db *dbx.DB) *AdminHandler {
	return &AdminHandler{payments: payments, issuance: issuance, db: db}
}

type verifyRequest struct {
	VerifierID string `json:"verifier_id"`
}

// VerifyPayment - admin confirms the transfer arrived
func (h *AdminHandler) VerifyPayment(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := h.payments.Verify(c.Request().Context(), c.PathParam("paymentId"), req.VerifierID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Payment verified"})
}

type rejectRequest struct {
	VerifierID string `json:"verifier_id"`
	Reason     string `json:"reason"`
}

// RejectPayment - admin turns down the submitted reference
func (h *AdminHandler) RejectPayment(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := h.payments.Reject(c.Request().Context(), c.PathParam("paymentId"), req.VerifierID, req.Reason); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Payment rejected"})
}

// GetTaskDashboard - outstanding and dead ticket generation tasks
func (h *AdminHandler) GetTaskDashboard(c echo.Context) error {
	var tasks []models.TicketTask
	err := h.db.Select().From("ticket_tasks").OrderBy("next_attempt_at").All(&tasks)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	pending := 0
	failed := 0
	for _, t := range tasks {
		if t.Status == models.TaskFailed {
			failed++
		} else {
			pending++
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"tasks":   tasks,
		"pending": pending,
		"failed":  failed,
	})
}

// ForceProcessTasks - run one drain pass outside the scheduler.
// Relies on the same serial-invocation contract, so it simply runs
// inline on the request.
func (h *AdminHandler) ForceProcessTasks(c echo.Context) error {
	report, err := h.issuance.ProcessDue(c.Request().Context(), time.Now())
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"issued":  report.Issued,
		"retried": report.Retried,
		"failed":  report.Failed,
	})
}
