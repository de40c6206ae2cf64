package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"booking-system/internal/status"
	"booking-system/models"
)

// BookingLedger owns the persisted booking records and their seat
// side effects. Seat mutual exclusion itself lives in the lock store;
// the ledger only turns a granted lock into durable state.
type BookingLedger struct {
	DB       *dbx.DB
	Locks    *SeatLockManager
	LockTTL  time.Duration
	MaxSeats int
}

func NewBookingLedger(db *dbx.DB, locks *SeatLockManager, lockTTL time.Duration, maxSeats int) *BookingLedger {
	return &BookingLedger{DB: db, Locks: locks, LockTTL: lockTTL, MaxSeats: maxSeats}
}

// CreateDraft locks the seat set and persists a pending booking that
// references it. The lock is all-or-nothing: any denied seat aborts
// the draft and nothing is held.
func (l *BookingLedger) CreateDraft(ctx context.Context, userID, eventID string, seats []string, amount decimal.Decimal) (*models.Booking, error) {
	if userID == "" {
		return nil, status.Invalid("user_id", "required")
	}
	if eventID == "" {
		return nil, status.Invalid("event_id", "required")
	}
	if len(seats) == 0 {
		return nil, status.Invalid("seats", "at least one seat is required")
	}
	if l.MaxSeats > 0 && len(seats) > l.MaxSeats {
		return nil, status.Invalid("seats", fmt.Sprintf("at most %d seats per booking", l.MaxSeats))
	}
	if amount.IsNegative() {
		return nil, status.Invalid("amount", "must not be negative")
	}

	lock, err := l.Locks.Lock(ctx, eventID, seats, userID, l.LockTTL)
	if err != nil {
		return nil, status.Transient("seat lock", err)
	}
	if len(lock.Denied) > 0 {
		return nil, status.Conflict(status.CodeSeatUnavailable,
			fmt.Sprintf("seats already held: %v", lock.Denied))
	}

	now := time.Now().Unix()
	booking := &models.Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		Amount:    amount,
		Status:    models.BookingPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	booking.SetSeats(seats)

	err = l.DB.Transactional(func(tx *dbx.Tx) error {
		if err := tx.Model(booking).Insert(); err != nil {
			return err
		}
		return l.setSeatStatus(tx, eventID, seats, models.SeatLocked)
	})
	if err != nil {
		// The draft failed; give the seats back rather than waiting
		// out the TTL.
		if _, relErr := l.Locks.Release(ctx, eventID, seats, userID); relErr != nil {
			slog.Error("failed to release seats after draft failure",
				"booking_id", booking.ID, "error", relErr)
		}
		return nil, status.Transient("insert booking", err)
	}

	slog.Info("booking draft created",
		"booking_id", booking.ID, "user_id", userID, "event_id", eventID, "seats", seats)
	return booking, nil
}

// Get loads one booking.
func (l *BookingLedger) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	return l.getTx(l.DB, bookingID)
}

func (l *BookingLedger) getTx(db dbx.Builder, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := db.Select().From("bookings").Where(dbx.HashExp{"id": bookingID}).One(&booking)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound("booking", bookingID)
	}
	if err != nil {
		return nil, status.Transient("load booking", err)
	}
	return &booking, nil
}

// ListByUser returns a user's bookings, newest first.
func (l *BookingLedger) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := l.DB.Select().From("bookings").
		Where(dbx.HashExp{"user_id": userID}).
		OrderBy("created_at DESC").
		All(&bookings)
	if err != nil {
		return nil, status.Transient("list bookings", err)
	}
	return bookings, nil
}

// Cancel moves a pending booking to cancelled and releases its seat
// locks. Only the owning user can cancel, and only while pending.
func (l *BookingLedger) Cancel(ctx context.Context, bookingID, userID string) error {
	booking, err := l.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.UserID != userID {
		return status.Conflict(status.CodeBookingNotPending, "booking belongs to another user")
	}

	seats := booking.Seats()
	err = l.DB.Transactional(func(tx *dbx.Tx) error {
		result, err := tx.Update("bookings",
			dbx.Params{"status": models.BookingCancelled, "updated_at": time.Now().Unix()},
			dbx.NewExp("id = {:id} AND status = {:expected}",
				dbx.Params{"id": bookingID, "expected": models.BookingPending}),
		).Execute()
		if err != nil {
			return status.Transient("cancel booking", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return status.Conflict(status.CodeBookingNotPending,
				fmt.Sprintf("booking %s is not pending", bookingID))
		}
		return l.setSeatStatus(tx, booking.EventID, seats, models.SeatAvailable)
	})
	if err != nil {
		return err
	}

	if _, err := l.Locks.Release(ctx, booking.EventID, seats, userID); err != nil {
		slog.Error("failed to release seats on cancel", "booking_id", bookingID, "error", err)
	}
	return nil
}

// confirmTx flips the booking to confirmed inside the caller's
// transaction. Zero affected rows means another writer already settled
// the booking. A booking rejected by a prior payment decision may
// still be confirmed by a later re-verification.
func (l *BookingLedger) confirmTx(tx dbx.Builder, bookingID string) error {
	result, err := tx.Update("bookings",
		dbx.Params{"status": models.BookingConfirmed, "updated_at": time.Now().Unix()},
		dbx.NewExp("id = {:id} AND status IN ({:pending}, {:rejected})", dbx.Params{
			"id":       bookingID,
			"pending":  models.BookingPending,
			"rejected": models.BookingPaymentRejected,
		}),
	).Execute()
	if err != nil {
		return status.Transient("confirm booking", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return status.Conflict(status.CodeInvalidTransition,
			fmt.Sprintf("booking %s cannot be confirmed", bookingID))
	}
	return nil
}

// rejectTx marks the booking payment_rejected inside the caller's
// transaction.
func (l *BookingLedger) rejectTx(tx dbx.Builder, bookingID string) error {
	result, err := tx.Update("bookings",
		dbx.Params{"status": models.BookingPaymentRejected, "updated_at": time.Now().Unix()},
		dbx.NewExp("id = {:id} AND status = {:expected}",
			dbx.Params{"id": bookingID, "expected": models.BookingPending}),
	).Execute()
	if err != nil {
		return status.Transient("reject booking", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return status.Conflict(status.CodeInvalidTransition,
			fmt.Sprintf("booking %s cannot be rejected", bookingID))
	}
	return nil
}

// FinalizeSeats settles the seat side of a confirmation: durable rows
// become booked, then the cache locks are dropped. Called after the
// payment commit, outside its transaction.
func (l *BookingLedger) FinalizeSeats(ctx context.Context, booking *models.Booking) error {
	seats := booking.Seats()

	err := l.DB.Transactional(func(tx *dbx.Tx) error {
		return l.setSeatStatus(tx, booking.EventID, seats, models.SeatBooked)
	})
	if err != nil {
		return status.Transient("finalize seats", err)
	}

	if err := l.Locks.Confirm(ctx, booking.EventID, seats, booking.UserID); err != nil {
		// The locks will expire on their own; the durable state is
		// already booked, which is what every later reader consults.
		slog.Error("failed to clear seat locks on confirm",
			"booking_id", booking.ID, "error", err)
	}
	return nil
}

func (l *BookingLedger) setSeatStatus(tx dbx.Builder, eventID string, seats []string, seatStatus string) error {
	for _, seatID := range seats {
		_, err := tx.NewQuery(
			`INSERT INTO seats (id, event_id, status) VALUES ({:id}, {:event}, {:status})
			 ON CONFLICT (event_id, id) DO UPDATE SET status = {:status}`,
		).Bind(dbx.Params{"id": seatID, "event": eventID, "status": seatStatus}).Execute()
		if err != nil {
			return err
		}
	}
	return nil
}
