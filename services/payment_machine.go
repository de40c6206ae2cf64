package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"

	"booking-system/internal/status"
	"booking-system/models"
	"booking-system/monitoring"
	"booking-system/utils"
)

// referencePattern matches customer-supplied proof-of-transfer codes
// (bank UTRs and similar).
var referencePattern = regexp.MustCompile(`^[A-Za-z0-9]{6,32}$`)

// PaymentStateMachine governs payment status transitions and their
// cascade into booking status. Transitions are enforced by guarded
// updates (WHERE status = expected), so of two racing admin actions
// only one can win; the loser sees a StateConflictError and no partial
// mutation.
type PaymentStateMachine struct {
	DB       *dbx.DB
	Ledger   *BookingLedger
	Issuance *TicketIssuanceQueue
	Notifier Notifier
	Monitor  *monitoring.Monitor

	// RetryPolicy bounds the verify commit, which touches two records
	// and must ride out transient storage contention.
	RetryPolicy utils.RetryPolicy
}

func NewPaymentStateMachine(db *dbx.DB, ledger *BookingLedger, issuance *TicketIssuanceQueue, notifier Notifier, monitor *monitoring.Monitor, retryPolicy utils.RetryPolicy) *PaymentStateMachine {
	if retryPolicy.Retryable == nil {
		retryPolicy.Retryable = status.IsTransient
	}
	return &PaymentStateMachine{
		DB:          db,
		Ledger:      ledger,
		Issuance:    issuance,
		Notifier:    notifier,
		Monitor:     monitor,
		RetryPolicy: retryPolicy,
	}
}

// Initialize creates the payment record for a pending booking. A
// rejected payment may be re-initialized, which resets it to pending;
// any other existing payment is a conflict.
func (m *PaymentStateMachine) Initialize(ctx context.Context, bookingID, method string) (*models.Payment, error) {
	if method == "" {
		return nil, status.Invalid("method", "required")
	}

	booking, err := m.Ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingPending && booking.Status != models.BookingPaymentRejected {
		return nil, status.Conflict(status.CodeBookingNotPending,
			fmt.Sprintf("booking %s is %s", bookingID, booking.Status))
	}

	existing, err := m.getByBooking(bookingID)
	if err != nil && !status.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().Unix()
	if existing != nil {
		if existing.Status != models.PaymentRejected {
			return nil, status.Conflict(status.CodePaymentAlreadyExists,
				fmt.Sprintf("payment %s already exists with status %s", existing.ID, existing.Status))
		}

		// Fresh attempt after a rejection: back to pending with the
		// previous decision cleared out.
		result, err := m.DB.Update("payments", dbx.Params{
			"status":         models.PaymentPending,
			"method":         method,
			"reference_code": nil,
			"verified_by":    nil,
			"verified_at":    nil,
			"reject_reason":  nil,
			"updated_at":     now,
		}, dbx.NewExp("id = {:id} AND status = {:expected}",
			dbx.Params{"id": existing.ID, "expected": models.PaymentRejected}),
		).Execute()
		if err != nil {
			return nil, status.Transient("reset payment", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return nil, status.Conflict(status.CodePaymentAlreadyExists,
				fmt.Sprintf("payment %s changed state concurrently", existing.ID))
		}

		m.trackTransition(models.PaymentRejected, models.PaymentPending)
		return m.Get(ctx, existing.ID)
	}

	payment := &models.Payment{
		ID:        uuid.NewString(),
		BookingID: bookingID,
		Amount:    booking.Amount,
		Method:    method,
		Status:    models.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.DB.Model(payment).Insert(); err != nil {
		return nil, status.Transient("insert payment", err)
	}

	m.trackTransition("none", models.PaymentPending)
	slog.Info("payment initialized", "payment_id", payment.ID, "booking_id", bookingID, "method", method)
	return payment, nil
}

// SubmitReference attaches the customer's proof of transfer and moves
// the payment to awaiting_verification.
func (m *PaymentStateMachine) SubmitReference(ctx context.Context, paymentID, referenceCode string) (*models.Payment, error) {
	if !referencePattern.MatchString(referenceCode) {
		return nil, status.Invalid("reference_code", "must be 6-32 alphanumeric characters")
	}

	result, err := m.DB.Update("payments", dbx.Params{
		"status":         models.PaymentAwaitingVerification,
		"reference_code": referenceCode,
		"updated_at":     time.Now().Unix(),
	}, dbx.NewExp("id = {:id} AND status = {:expected}",
		dbx.Params{"id": paymentID, "expected": models.PaymentPending}),
	).Execute()
	if err != nil {
		return nil, status.Transient("submit reference", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		payment, err := m.Get(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		return nil, status.Conflict(status.CodeInvalidTransition,
			fmt.Sprintf("payment %s is %s, expected pending", paymentID, payment.Status))
	}

	m.trackTransition(models.PaymentPending, models.PaymentAwaitingVerification)
	return m.Get(ctx, paymentID)
}

// Verify is admin-only. The payment and booking flip together inside
// one transaction; the transaction is retried on transient storage
// errors. Ticket issuance and notification run after the commit and
// can never undo it: financial state is authoritative regardless of
// fulfillment trouble.
func (m *PaymentStateMachine) Verify(ctx context.Context, paymentID, verifierID string) error {
	if verifierID == "" {
		return status.Invalid("verifier_id", "required")
	}

	started := time.Now()
	var payment models.Payment

	err := utils.Retry(ctx, m.RetryPolicy, func(ctx context.Context) error {
		return m.DB.Transactional(func(tx *dbx.Tx) error {
			current, err := m.getByIDTx(tx, paymentID)
			if err != nil {
				return err
			}

			// verified is reachable from awaiting_verification, or
			// from rejected when the customer's reference survived
			// the earlier decision (retried manual verification).
			switch {
			case current.Status == models.PaymentAwaitingVerification:
			case current.Status == models.PaymentRejected && current.ReferenceCode.Valid:
			default:
				return status.Conflict(status.CodeInvalidTransition,
					fmt.Sprintf("payment %s is %s, cannot verify", paymentID, current.Status))
			}

			result, err := tx.Update("payments", dbx.Params{
				"status":      models.PaymentVerified,
				"verified_by": verifierID,
				"verified_at": time.Now().Unix(),
				"updated_at":  time.Now().Unix(),
			}, dbx.NewExp("id = {:id} AND status = {:expected}",
				dbx.Params{"id": paymentID, "expected": current.Status}),
			).Execute()
			if err != nil {
				return status.Transient("verify payment", err)
			}
			if rows, _ := result.RowsAffected(); rows == 0 {
				return status.Conflict(status.CodeInvalidTransition,
					fmt.Sprintf("payment %s changed state concurrently", paymentID))
			}

			if err := m.Ledger.confirmTx(tx, current.BookingID); err != nil {
				return err
			}

			payment = *current
			m.trackTransition(current.Status, models.PaymentVerified)
			return nil
		})
	})
	if err != nil {
		return err
	}

	if m.Monitor != nil {
		m.Monitor.TrackVerifyDuration(time.Since(started))
	}

	booking, err := m.Ledger.Get(ctx, payment.BookingID)
	if err != nil {
		// Commit already happened; the booking is confirmed. Leave
		// seat finalization and issuance to the retry queue.
		slog.Error("booking reload failed after verify", "payment_id", paymentID, "error", err)
		m.enqueueIssuance(ctx, payment.BookingID, verifierID)
		return nil
	}

	if err := m.Ledger.FinalizeSeats(ctx, booking); err != nil {
		slog.Error("seat finalization failed after verify", "booking_id", booking.ID, "error", err)
	}

	if _, err := m.Issuance.IssueNow(ctx, booking.ID, verifierID); err != nil {
		slog.Warn("synchronous ticket issuance failed, scheduling retry",
			"booking_id", booking.ID, "error", err)
		m.enqueueIssuance(ctx, booking.ID, verifierID)
	}

	m.Notifier.PaymentVerified(ctx, booking.UserID, booking.ID, paymentID)
	slog.Info("payment verified", "payment_id", paymentID, "booking_id", booking.ID, "verifier_id", verifierID)
	return nil
}

// Reject turns down a submitted payment. The booking follows into
// payment_rejected so the customer can start over.
func (m *PaymentStateMachine) Reject(ctx context.Context, paymentID, verifierID, reason string) error {
	if verifierID == "" {
		return status.Invalid("verifier_id", "required")
	}

	var bookingID string
	err := m.DB.Transactional(func(tx *dbx.Tx) error {
		current, err := m.getByIDTx(tx, paymentID)
		if err != nil {
			return err
		}
		if current.Status != models.PaymentAwaitingVerification {
			return status.Conflict(status.CodeInvalidTransition,
				fmt.Sprintf("payment %s is %s, cannot reject", paymentID, current.Status))
		}

		result, err := tx.Update("payments", dbx.Params{
			"status":        models.PaymentRejected,
			"reject_reason": reason,
			"updated_at":    time.Now().Unix(),
		}, dbx.NewExp("id = {:id} AND status = {:expected}",
			dbx.Params{"id": paymentID, "expected": models.PaymentAwaitingVerification}),
		).Execute()
		if err != nil {
			return status.Transient("reject payment", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return status.Conflict(status.CodeInvalidTransition,
				fmt.Sprintf("payment %s changed state concurrently", paymentID))
		}

		bookingID = current.BookingID
		return m.Ledger.rejectTx(tx, current.BookingID)
	})
	if err != nil {
		return err
	}

	m.trackTransition(models.PaymentAwaitingVerification, models.PaymentRejected)

	if booking, err := m.Ledger.Get(ctx, bookingID); err == nil {
		m.Notifier.PaymentRejected(ctx, booking.UserID, bookingID, paymentID, reason)
	}
	slog.Info("payment rejected", "payment_id", paymentID, "booking_id", bookingID,
		"verifier_id", verifierID, "reason", reason)
	return nil
}

// Get loads one payment.
func (m *PaymentStateMachine) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	return m.getByIDTx(m.DB, paymentID)
}

// GetByBooking loads the payment attached to a booking.
func (m *PaymentStateMachine) GetByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	return m.getByBooking(bookingID)
}

func (m *PaymentStateMachine) getByIDTx(db dbx.Builder, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := db.Select().From("payments").Where(dbx.HashExp{"id": paymentID}).One(&payment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound("payment", paymentID)
	}
	if err != nil {
		return nil, status.Transient("load payment", err)
	}
	return &payment, nil
}

func (m *PaymentStateMachine) getByBooking(bookingID string) (*models.Payment, error) {
	var payment models.Payment
	err := m.DB.Select().From("payments").Where(dbx.HashExp{"booking_id": bookingID}).One(&payment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound("payment for booking", bookingID)
	}
	if err != nil {
		return nil, status.Transient("load payment", err)
	}
	return &payment, nil
}

func (m *PaymentStateMachine) enqueueIssuance(ctx context.Context, bookingID, initiatorID string) {
	if err := m.Issuance.Enqueue(ctx, bookingID, initiatorID); err != nil {
		// The scheduler cannot see this booking now; it needs the
		// admin dashboard to re-trigger issuance.
		slog.Error("failed to enqueue ticket generation task",
			"booking_id", bookingID, "error", err)
	}
}

func (m *PaymentStateMachine) trackTransition(from, to string) {
	if m.Monitor != nil {
		m.Monitor.TrackPaymentTransition(from, to)
	}
}
