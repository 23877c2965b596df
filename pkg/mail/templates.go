package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// ReservationEmailData feeds the reservation-related templates.
type ReservationEmailData struct {
	FirstName    string
	LockerNumber string
	StartDate    time.Time
	EndDate      time.Time
	TotalPrice   string
	CheckoutURL  string
}

// RenderReservationCreated produces the confirmation sent once a reservation is recorded.
func RenderReservationCreated(to string, data ReservationEmailData) (Message, error) {
	return render(to, "Votre réservation de casier", "reservation_created.html", data)
}

// RenderPaymentConfirmed produces the receipt sent once payment clears.
func RenderPaymentConfirmed(to string, data ReservationEmailData) (Message, error) {
	return render(to, "Paiement confirmé — casier "+data.LockerNumber, "payment_confirmed.html", data)
}

// RenderExpiryReminder produces the reminder sent shortly before a rental ends.
func RenderExpiryReminder(to string, data ReservationEmailData) (Message, error) {
	return render(to, "Votre location de casier se termine bientôt", "expiry_reminder.html", data)
}

// RenderRefundIssued produces the notice sent after a refund is processed.
func RenderRefundIssued(to string, data ReservationEmailData) (Message, error) {
	return render(to, "Remboursement effectué", "refund_issued.html", data)
}

func render(to, subject, name string, data ReservationEmailData) (Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("render template %s: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}
