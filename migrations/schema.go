package migrations

import (
	"fmt"

	"github.com/pocketbase/dbx"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS seats (
		id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'available',
		PRIMARY KEY (event_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		seats TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL UNIQUE,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reference_code TEXT,
		verified_by TEXT,
		verified_at INTEGER,
		reject_reason TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL,
		seat_id TEXT NOT NULL,
		serial TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		artifact_ref TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (booking_id, seat_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_tasks (
		booking_id TEXT PRIMARY KEY,
		initiated_by TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		next_attempt_at INTEGER NOT NULL,
		last_error TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_booking ON tickets (booking_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_due ON ticket_tasks (status, next_attempt_at)`,
}

// Apply creates the schema. Every statement is idempotent, so Apply is
// safe to run on every boot.
func Apply(db *dbx.DB) error {
	for _, stmt := range statements {
		if _, err := db.NewQuery(stmt).Execute(); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
