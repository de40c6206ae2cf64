package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	BookingPending         = "pending"
	BookingConfirmed       = "confirmed"
	BookingCancelled       = "cancelled"
	BookingPaymentRejected = "payment_rejected"
)

type Booking struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"user_id"`
	EventID   string          `db:"event_id" json:"event_id"`
	SeatsJSON string          `db:"seats" json:"-"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Status    string          `db:"status" json:"status"`
	CreatedAt int64           `db:"created_at" json:"created_at"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
}

func (b *Booking) TableName() string { return "bookings" }

// Seats decodes the persisted seat set. A corrupt column yields nil.
func (b *Booking) Seats() []string {
	var seats []string
	if err := json.Unmarshal([]byte(b.SeatsJSON), &seats); err != nil {
		return nil
	}
	return seats
}

func (b *Booking) SetSeats(seats []string) {
	data, _ := json.Marshal(seats)
	b.SeatsJSON = string(data)
}
