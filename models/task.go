package models

import "database/sql"

const (
	TaskPending = "pending"
	TaskFailed  = "failed"
)

// TicketTask is one outstanding ticket generation job. Keyed by booking,
// so a booking never has more than one job in flight.
type TicketTask struct {
	BookingID     string         `db:"booking_id" json:"booking_id"`
	InitiatedBy   string         `db:"initiated_by" json:"initiated_by"`
	Attempts      int            `db:"attempts" json:"attempts"`
	MaxAttempts   int            `db:"max_attempts" json:"max_attempts"`
	NextAttemptAt int64          `db:"next_attempt_at" json:"next_attempt_at"`
	LastError     sql.NullString `db:"last_error" json:"last_error"`
	Status        string         `db:"status" json:"status"`
	CreatedAt     int64          `db:"created_at" json:"created_at"`
	UpdatedAt     int64          `db:"updated_at" json:"updated_at"`
}

func (t *TicketTask) TableName() string { return "ticket_tasks" }
