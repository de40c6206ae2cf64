package services

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/skip2/go-qrcode"

	"booking-system/models"
)

// TicketRenderer turns a ticket record into a printable or scannable
// artifact reference. A render failure fails the whole issuance
// attempt, which then goes through the retry queue.
type TicketRenderer interface {
	Render(ticket *models.Ticket) (string, error)
}

// QRTicketRenderer encodes the ticket's verification payload as a QR
// PNG and returns it as a data URI.
type QRTicketRenderer struct {
	Size int
}

func NewQRTicketRenderer() *QRTicketRenderer {
	return &QRTicketRenderer{Size: 256}
}

func (r *QRTicketRenderer) Render(ticket *models.Ticket) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"ticket_id":  ticket.ID,
		"booking_id": ticket.BookingID,
		"seat_id":    ticket.SeatID,
		"serial":     ticket.Serial,
	})
	if err != nil {
		return "", err
	}

	png, err := qrcode.Encode(string(payload), qrcode.Medium, r.Size)
	if err != nil {
		return "", fmt.Errorf("encode qr for ticket %s: %w", ticket.ID, err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
