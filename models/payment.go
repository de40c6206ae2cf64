package models

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

const (
	PaymentPending              = "pending"
	PaymentAwaitingVerification = "awaiting_verification"
	PaymentVerified             = "verified"
	PaymentRejected             = "rejected"
)

type Payment struct {
	ID            string          `db:"id" json:"payment_id"`
	BookingID     string          `db:"booking_id" json:"booking_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Method        string          `db:"method" json:"method"`
	Status        string          `db:"status" json:"status"`
	ReferenceCode sql.NullString  `db:"reference_code" json:"reference_code"`
	VerifiedBy    sql.NullString  `db:"verified_by" json:"verified_by"`
	VerifiedAt    sql.NullInt64   `db:"verified_at" json:"verified_at"`
	RejectReason  sql.NullString  `db:"reject_reason" json:"reject_reason"`
	CreatedAt     int64           `db:"created_at" json:"created_at"`
	UpdatedAt     int64           `db:"updated_at" json:"updated_at"`
}

func (p *Payment) TableName() string { return "payments" }
