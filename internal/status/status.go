package status

import (
	"errors"
	"fmt"
)

// Conflict codes surfaced to API clients.
const (
	CodePaymentAlreadyExists = "PAYMENT_ALREADY_EXISTS"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeSeatUnavailable      = "SEAT_UNAVAILABLE"
	CodeBookingNotPending    = "BOOKING_NOT_PENDING"
)

// ValidationError reports bad input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing booking, payment, seat or task.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// StateConflictError reports an illegal transition or an already-owned
// seat. Surfaced immediately, never retried.
type StateConflictError struct {
	Code   string
	Detail string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("conflict %s: %s", e.Code, e.Detail)
}

func Conflict(code, detail string) error {
	return &StateConflictError{Code: code, Detail: detail}
}

// TransientError wraps a storage failure that is worth retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// FulfillmentError marks a ticket generation task that exhausted its
// retry budget. The booking stays confirmed; manual intervention is
// signalled through the notifier.
type FulfillmentError struct {
	BookingID string
	Attempts  int
	LastErr   string
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("fulfillment failed for booking %s after %d attempts: %s",
		e.BookingID, e.Attempts, e.LastErr)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var c *StateConflictError
	return errors.As(err, &c)
}

// ConflictCode returns the machine code of a conflict error, or "".
func ConflictCode(err error) string {
	var c *StateConflictError
	if errors.As(err, &c) {
		return c.Code
	}
	return ""
}

// IsTransient reports whether err is worth retrying. Taxonomy errors
// (validation, not-found, conflict) are permanent; anything else that
// reached storage is assumed transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) || IsNotFound(err) || IsConflict(err) {
		return false
	}
	return true
}
