package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"

	"booking-system/internal/status"
	"booking-system/models"
	"booking-system/monitoring"
	"booking-system/utils"
)

// TicketIssuanceQueue turns verified payments into issued tickets,
// exactly once per booking, surviving crashes and partial failures
// through the durable task table. It owns no scheduling: ProcessDue is
// a pure entry point and the caller guarantees at most one concurrent
// invocation.
type TicketIssuanceQueue struct {
	DB       *dbx.DB
	Ledger   *BookingLedger
	Renderer TicketRenderer
	Notifier Notifier
	Monitor  *monitoring.Monitor

	RetryDelay  time.Duration
	MaxAttempts int
}

func NewTicketIssuanceQueue(db *dbx.DB, ledger *BookingLedger, renderer TicketRenderer, notifier Notifier, monitor *monitoring.Monitor, retryDelay time.Duration, maxAttempts int) *TicketIssuanceQueue {
	return &TicketIssuanceQueue{
		DB:          db,
		Ledger:      ledger,
		Renderer:    renderer,
		Notifier:    notifier,
		Monitor:     monitor,
		RetryDelay:  retryDelay,
		MaxAttempts: maxAttempts,
	}
}

// IssueNow materializes one ticket per booked seat. If tickets already
// exist for the booking they are returned unchanged, making the call
// safe to repeat from any number of retries.
func (q *TicketIssuanceQueue) IssueNow(ctx context.Context, bookingID, initiatorID string) ([]string, error) {
	booking, err := q.Ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingConfirmed {
		return nil, status.Conflict(status.CodeInvalidTransition,
			fmt.Sprintf("booking %s is %s, not confirmed", bookingID, booking.Status))
	}

	var existing []models.Ticket
	err = q.DB.Select().From("tickets").
		Where(dbx.HashExp{"booking_id": bookingID}).
		OrderBy("seat_id").
		All(&existing)
	if err != nil {
		return nil, status.Transient("load tickets", err)
	}
	if len(existing) > 0 {
		ids := make([]string, len(existing))
		for i, t := range existing {
			ids[i] = t.ID
		}
		q.track("already_issued")
		return ids, nil
	}

	seats := booking.Seats()
	if len(seats) == 0 {
		return nil, status.Invalid("seats", fmt.Sprintf("booking %s has no seats", bookingID))
	}

	now := time.Now().Unix()
	tickets := make([]*models.Ticket, 0, len(seats))
	for _, seatID := range seats {
		serial, err := utils.GenerateCode(8)
		if err != nil {
			return nil, status.Transient("generate serial", err)
		}

		ticket := &models.Ticket{
			ID:        uuid.NewString(),
			BookingID: bookingID,
			SeatID:    seatID,
			Serial:    serial,
			Status:    models.TicketActive,
			CreatedAt: now,
		}

		artifact, err := q.Renderer.Render(ticket)
		if err != nil {
			q.track("render_failed")
			return nil, status.Transient("render ticket", err)
		}
		ticket.ArtifactRef = artifact
		tickets = append(tickets, ticket)
	}

	err = q.DB.Transactional(func(tx *dbx.Tx) error {
		for _, ticket := range tickets {
			if err := tx.Model(ticket).Insert(); err != nil {
				return err
			}
		}
		// Success clears any outstanding retry task for the booking.
		_, err := tx.Delete("ticket_tasks", dbx.HashExp{"booking_id": bookingID}).Execute()
		return err
	})
	if err != nil {
		q.track("store_failed")
		return nil, status.Transient("insert tickets", err)
	}

	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	q.track("issued")
	slog.Info("tickets issued", "booking_id", bookingID, "count", len(ids), "initiator_id", initiatorID)
	return ids, nil
}

// Enqueue records that issuance for the booking must be retried later.
// The task is keyed by booking, so repeated enqueues collapse into one
// fresh task.
func (q *TicketIssuanceQueue) Enqueue(ctx context.Context, bookingID, initiatorID string) error {
	now := time.Now().Unix()
	_, err := q.DB.NewQuery(
		`INSERT INTO ticket_tasks
			(booking_id, initiated_by, attempts, max_attempts, next_attempt_at, status, created_at, updated_at)
		 VALUES ({:booking}, {:initiator}, 0, {:max}, {:next}, 'pending', {:now}, {:now})
		 ON CONFLICT (booking_id) DO UPDATE SET
			initiated_by = {:initiator},
			attempts = 0,
			max_attempts = {:max},
			next_attempt_at = {:next},
			last_error = NULL,
			status = 'pending',
			updated_at = {:now}`,
	).Bind(dbx.Params{
		"booking":   bookingID,
		"initiator": initiatorID,
		"max":       q.MaxAttempts,
		"next":      now + int64(q.RetryDelay.Seconds()),
		"now":       now,
	}).Execute()
	if err != nil {
		return status.Transient("enqueue task", err)
	}

	slog.Info("ticket generation task enqueued",
		"booking_id", bookingID, "initiator_id", initiatorID, "retry_in", q.RetryDelay)
	return nil
}

// DueReport summarizes one ProcessDue pass.
type DueReport struct {
	Issued  []string
	Retried []string
	Failed  []string
}

// ProcessDue drains every task whose next attempt is due at or before
// now. Successful tasks disappear; failing tasks are pushed forward by
// the retry delay; a task hitting its attempt budget freezes at failed
// and alerts its initiator exactly once.
func (q *TicketIssuanceQueue) ProcessDue(ctx context.Context, now time.Time) (DueReport, error) {
	var report DueReport

	var tasks []models.TicketTask
	err := q.DB.Select().From("ticket_tasks").
		Where(dbx.HashExp{"status": models.TaskPending}).
		AndWhere(dbx.NewExp("next_attempt_at <= {:now}", dbx.Params{"now": now.Unix()})).
		AndWhere(dbx.NewExp("attempts < max_attempts")).
		OrderBy("next_attempt_at").
		All(&tasks)
	if err != nil {
		return report, status.Transient("select due tasks", err)
	}

	for _, task := range tasks {
		if _, err := q.IssueNow(ctx, task.BookingID, task.InitiatedBy); err != nil {
			q.recordFailure(ctx, task, now, err)
			if task.Attempts+1 >= task.MaxAttempts {
				report.Failed = append(report.Failed, task.BookingID)
			} else {
				report.Retried = append(report.Retried, task.BookingID)
			}
			continue
		}
		// IssueNow already deleted the task in its own transaction.
		report.Issued = append(report.Issued, task.BookingID)
	}

	if len(tasks) > 0 {
		slog.Info("processed due ticket tasks",
			"issued", len(report.Issued), "retried", len(report.Retried), "failed", len(report.Failed))
	}
	return report, nil
}

func (q *TicketIssuanceQueue) recordFailure(ctx context.Context, task models.TicketTask, now time.Time, cause error) {
	attempts := task.Attempts + 1
	params := dbx.Params{
		"attempts":        attempts,
		"last_error":      cause.Error(),
		"next_attempt_at": now.Unix() + int64(q.RetryDelay.Seconds()),
		"updated_at":      now.Unix(),
	}

	terminal := attempts >= task.MaxAttempts
	if terminal {
		params["status"] = models.TaskFailed
	}

	result, err := q.DB.Update("ticket_tasks", params,
		dbx.NewExp("booking_id = {:id} AND status = {:pending}",
			dbx.Params{"id": task.BookingID, "pending": models.TaskPending}),
	).Execute()
	if err != nil {
		slog.Error("failed to record issuance failure", "booking_id", task.BookingID, "error", err)
		return
	}

	q.track("retry_scheduled")
	slog.Warn("ticket issuance attempt failed",
		"booking_id", task.BookingID, "attempts", attempts, "max_attempts", task.MaxAttempts, "error", cause)

	if terminal {
		// Guarded update: the alert fires only for the writer that
		// actually performed the pending -> failed transition.
		if rows, _ := result.RowsAffected(); rows > 0 {
			exhausted := &status.FulfillmentError{
				BookingID: task.BookingID,
				Attempts:  attempts,
				LastErr:   cause.Error(),
			}
			q.track("exhausted")
			slog.Error("ticket issuance exhausted", "error", exhausted)
			q.Notifier.FulfillmentFailed(ctx, task.InitiatedBy, task.BookingID, attempts, cause.Error())
		}
	}
}

func (q *TicketIssuanceQueue) track(outcome string) {
	if q.Monitor != nil {
		q.Monitor.TrackIssuance(outcome)
	}
}
