package services

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"

	"booking-system/utils"
)

// Notifier delivers best-effort pushes to customers and admins.
// Implementations must never block the pipeline on delivery problems;
// a failed notification is logged and dropped.
type Notifier interface {
	PaymentVerified(ctx context.Context, userID, bookingID, paymentID string)
	PaymentRejected(ctx context.Context, userID, bookingID, paymentID, reason string)
	FulfillmentFailed(ctx context.Context, initiatorID, bookingID string, attempts int, lastError string)
}

// PubNubNotifier publishes to per-user channels. Publishes go through
// a circuit breaker so a push outage cannot slow down verification.
type PubNubNotifier struct {
	pn      *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		pn:      pn,
		breaker: utils.NewCircuitBreaker("pubnub"),
	}
}

func (n *PubNubNotifier) PaymentVerified(ctx context.Context, userID, bookingID, paymentID string) {
	n.publish(userID, map[string]any{
		"type":       "payment_verified",
		"booking_id": bookingID,
		"payment_id": paymentID,
	})
}

func (n *PubNubNotifier) PaymentRejected(ctx context.Context, userID, bookingID, paymentID, reason string) {
	n.publish(userID, map[string]any{
		"type":       "payment_rejected",
		"booking_id": bookingID,
		"payment_id": paymentID,
		"reason":     reason,
	})
}

func (n *PubNubNotifier) FulfillmentFailed(ctx context.Context, initiatorID, bookingID string, attempts int, lastError string) {
	n.publish(initiatorID, map[string]any{
		"type":       "ticket_generation_failed",
		"booking_id": bookingID,
		"attempts":   attempts,
		"last_error": lastError,
	})
}

func (n *PubNubNotifier) publish(userID string, message map[string]any) {
	channel := fmt.Sprintf("user-%s", userID)

	err := n.breaker.Do(func() error {
		_, _, err := n.pn.Publish().
			Channel(channel).
			Message(message).
			Execute()
		return err
	})
	if err != nil {
		slog.Error("notification dropped", "channel", channel, "type", message["type"], "error", err)
	}
}

// LogNotifier is the fallback when no push credentials are configured.
type LogNotifier struct{}

func (LogNotifier) PaymentVerified(ctx context.Context, userID, bookingID, paymentID string) {
	slog.Info("payment verified", "user_id", userID, "booking_id", bookingID, "payment_id", paymentID)
}

func (LogNotifier) PaymentRejected(ctx context.Context, userID, bookingID, paymentID, reason string) {
	slog.Info("payment rejected", "user_id", userID, "booking_id", bookingID,
		"payment_id", paymentID, "reason", reason)
}

func (LogNotifier) FulfillmentFailed(ctx context.Context, initiatorID, bookingID string, attempts int, lastError string) {
	slog.Error("ticket generation failed permanently", "initiator_id", initiatorID,
		"booking_id", bookingID, "attempts", attempts, "last_error", lastError)
}
