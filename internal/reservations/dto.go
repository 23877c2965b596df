package reservations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/casierlabs/casier-backend/internal/lockers"
	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
)

// CreateReservationDTO is the payload for booking a locker. The rental starts
// immediately, so the start date is never client-supplied.
type CreateReservationDTO struct {
	LockerID      uuid.UUID `json:"locker_id" validate:"required"`
	DurationHours int64     `json:"duration_hours" validate:"required"`
}

// ReservationSummary is the public shape returned to API clients.
type ReservationSummary struct {
	ID            uuid.UUID               `json:"id"`
	UserID        uuid.UUID               `json:"user_id"`
	LockerID      uuid.UUID               `json:"locker_id"`
	Locker        *lockers.LockerSummary  `json:"locker,omitempty"`
	StartDate     time.Time               `json:"start_date"`
	EndDate       time.Time               `json:"end_date"`
	DurationHours int64                   `json:"duration_hours"`
	TotalPrice    decimal.Decimal         `json:"total_price"`
	Status        enums.ReservationStatus `json:"status"`
	PaymentStatus enums.PaymentStatus     `json:"payment_status"`
	ReminderSent  bool                    `json:"reminder_sent"`
	CreatedAt     time.Time               `json:"created_at"`
}

// FromModel maps the persistence model to the public summary.
func FromModel(reservation *models.Reservation) ReservationSummary {
	if reservation == nil {
		return ReservationSummary{}
	}
	summary := ReservationSummary{
		ID:            reservation.ID,
		UserID:        reservation.UserID,
		LockerID:      reservation.LockerID,
		StartDate:     reservation.StartDate,
		EndDate:       reservation.EndDate,
		DurationHours: reservation.DurationHours,
		TotalPrice:    reservation.TotalPrice,
		Status:        reservation.Status,
		PaymentStatus: reservation.PaymentStatus,
		ReminderSent:  reservation.ReminderSent,
		CreatedAt:     reservation.CreatedAt,
	}
	if reservation.Locker != nil {
		locker := lockers.FromModel(reservation.Locker)
		summary.Locker = &locker
	}
	return summary
}
