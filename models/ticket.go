package models

const (
	TicketActive    = "active"
	TicketUsed      = "used"
	TicketCancelled = "cancelled"
)

type Ticket struct {
	ID          string `db:"id" json:"id"`
	BookingID   string `db:"booking_id" json:"booking_id"`
	SeatID      string `db:"seat_id" json:"seat_id"`
	Serial      string `db:"serial" json:"serial"`
	Status      string `db:"status" json:"status"`
	ArtifactRef string `db:"artifact_ref" json:"artifact_ref"`
	CreatedAt   int64  `db:"created_at" json:"created_at"`
}

func (t *Ticket) TableName() string { return "tickets" }

const (
	SeatAvailable = "available"
	SeatLocked    = "locked"
	SeatBooked    = "booked"
)

// Seat is the durable seat record. The transient lock owner and expiry
// live in the cache store, not here.
type Seat struct {
	ID      string `db:"id" json:"id"`
	EventID string `db:"event_id" json:"event_id"`
	Status  string `db:"status" json:"status"`
}

func (s *Seat) TableName() string { return "seats" }
