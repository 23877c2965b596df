package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/casierlabs/casier-backend/pkg/enums"
)

// Reservation ties a user to a locker for a bounded rental window.
type Reservation struct {
	ID                    uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	LockerID              uuid.UUID               `gorm:"column:locker_id;type:uuid;not null;index"`
	StartDate             time.Time               `gorm:"column:start_date;not null"`
	EndDate               time.Time               `gorm:"column:end_date;not null"`
	DurationHours         int64                   `gorm:"column:duration_hours;not null"`
	TotalPrice            decimal.Decimal         `gorm:"column:total_price;type:numeric(10,2);not null"`
	Status                enums.ReservationStatus `gorm:"column:status;type:reservation_status;not null;default:'pending'"`
	PaymentStatus         enums.PaymentStatus     `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	StripeSessionID       *string                 `gorm:"column:stripe_session_id;uniqueIndex"`
	StripeCustomerID      *string                 `gorm:"column:stripe_customer_id"`
	StripePaymentIntentID *string                 `gorm:"column:stripe_payment_intent_id"`
	ReminderSent          bool                    `gorm:"column:reminder_sent;not null;default:false"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	Locker *Locker `gorm:"foreignKey:LockerID"`
	User   *User   `gorm:"foreignKey:UserID"`
}
