package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"booking-system/migrations"
	"booking-system/models"
	"booking-system/utils"
)

func newTestDB(t *testing.T) *dbx.DB {
	t.Helper()

	db, err := dbx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory
	// database.
	db.DB().SetMaxOpenConns(1)
	require.NoError(t, migrations.Apply(db))
	t.Cleanup(func() { db.Close() })
	return db
}

// flakyRenderer stands in for the QR renderer; flipping fail simulates
// an artifact backend outage.
type flakyRenderer struct {
	fail  bool
	calls int
}

func (r *flakyRenderer) Render(ticket *models.Ticket) (string, error) {
	r.calls++
	if r.fail {
		return "", errors.New("artifact backend down")
	}
	return "artifact:" + ticket.Serial, nil
}

// recordingNotifier captures outbound notifications instead of
// publishing them.
type recordingNotifier struct {
	verified []string
	rejected []string
	failed   []string
}

func (n *recordingNotifier) PaymentVerified(ctx context.Context, userID, bookingID, paymentID string) {
	n.verified = append(n.verified, bookingID)
}

func (n *recordingNotifier) PaymentRejected(ctx context.Context, userID, bookingID, paymentID, reason string) {
	n.rejected = append(n.rejected, bookingID)
}

func (n *recordingNotifier) FulfillmentFailed(ctx context.Context, initiatorID, bookingID string, attempts int, lastError string) {
	n.failed = append(n.failed, bookingID)
}

type testPipeline struct {
	db       *dbx.DB
	redis    redismock.ClientMock
	locks    *SeatLockManager
	ledger   *BookingLedger
	renderer *flakyRenderer
	notifier *recordingNotifier
	issuance *TicketIssuanceQueue
	payments *PaymentStateMachine
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	db := newTestDB(t)
	rdb, rmock := redismock.NewClientMock()
	locks := NewSeatLockManager(rdb, nil)
	ledger := NewBookingLedger(db, locks, 10*time.Minute, 10)
	renderer := &flakyRenderer{}
	notifier := &recordingNotifier{}
	issuance := NewTicketIssuanceQueue(db, ledger, renderer, notifier, nil, 0, 3)
	payments := NewPaymentStateMachine(db, ledger, issuance, notifier, nil, utils.RetryPolicy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
	})

	return &testPipeline{
		db:       db,
		redis:    rmock,
		locks:    locks,
		ledger:   ledger,
		renderer: renderer,
		notifier: notifier,
		issuance: issuance,
		payments: payments,
	}
}

// seedBooking inserts a booking row directly, bypassing the lock store.
func (p *testPipeline) seedBooking(t *testing.T, id, userID, eventID string, seats []string, bookingStatus string) *models.Booking {
	t.Helper()

	now := time.Now().Unix()
	booking := &models.Booking{
		ID:        id,
		UserID:    userID,
		EventID:   eventID,
		Amount:    decimal.NewFromInt(150),
		Status:    bookingStatus,
		CreatedAt: now,
		UpdatedAt: now,
	}
	booking.SetSeats(seats)
	require.NoError(t, p.db.Model(booking).Insert())
	return booking
}

// expectConfirm arms the lock store mock for the lock cleanup that
// follows a successful verification.
func (p *testPipeline) expectConfirm(eventID string, seats []string, ownerID string) {
	keys := make([]string, len(seats))
	for i, seatID := range seats {
		keys[i] = seatLockKey(eventID, seatID)
	}
	p.redis.ExpectEval(confirmSeatsScript, keys, ownerID).SetVal([]interface{}{int64(1)})
}
