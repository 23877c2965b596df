package lockers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
	"github.com/casierlabs/casier-backend/pkg/types"
)

// CreateLockerDTO is the admin payload for registering a locker.
type CreateLockerDTO struct {
	Number      string         `json:"number" validate:"required,max=20"`
	Size        string         `json:"size" validate:"required,oneof=small medium large"`
	PricePerDay string         `json:"price_per_day" validate:"required"`
	Address     types.Address  `json:"address" validate:"required"`
	Latitude    float64        `json:"latitude" validate:"min=-90,max=90"`
	Longitude   float64        `json:"longitude" validate:"min=-180,max=180"`
	Partner     *types.Partner `json:"partner,omitempty"`
	Accessible  bool           `json:"accessible"`
}

// UpdateLockerDTO is the admin payload for mutating locker metadata.
// Nil fields are left untouched.
type UpdateLockerDTO struct {
	Size        *string        `json:"size,omitempty" validate:"omitempty,oneof=small medium large"`
	Status      *string        `json:"status,omitempty" validate:"omitempty,oneof=available reserved occupied maintenance"`
	PricePerDay *string        `json:"price_per_day,omitempty"`
	Address     *types.Address `json:"address,omitempty"`
	Latitude    *float64       `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude   *float64       `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
	Partner     *types.Partner `json:"partner,omitempty"`
	Accessible  *bool          `json:"accessible,omitempty"`
}

// LockerSummary is the public shape returned to API clients.
type LockerSummary struct {
	ID          uuid.UUID          `json:"id"`
	Number      string             `json:"number"`
	Size        enums.LockerSize   `json:"size"`
	Status      enums.LockerStatus `json:"status"`
	PricePerDay decimal.Decimal    `json:"price_per_day"`
	Address     types.Address      `json:"address"`
	Latitude    float64            `json:"latitude"`
	Longitude   float64            `json:"longitude"`
	Partner     *types.Partner     `json:"partner,omitempty"`
	Accessible  bool               `json:"accessible"`
	Stats       types.LockerStats  `json:"stats"`
	DistanceKM  *float64           `json:"distance_km,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// FromModel maps the persistence model to the public summary.
func FromModel(locker *models.Locker) LockerSummary {
	if locker == nil {
		return LockerSummary{}
	}
	return LockerSummary{
		ID:          locker.ID,
		Number:      locker.Number,
		Size:        locker.Size,
		Status:      locker.Status,
		PricePerDay: locker.PricePerDay,
		Address:     locker.Address,
		Latitude:    locker.Latitude,
		Longitude:   locker.Longitude,
		Partner:     locker.Partner,
		Accessible:  locker.Accessible,
		Stats:       locker.Stats,
		CreatedAt:   locker.CreatedAt,
	}
}

// NeighborhoodCount aggregates lockers per neighborhood.
type NeighborhoodCount struct {
	Neighborhood string `json:"neighborhood" gorm:"column:neighborhood"`
	Total        int64  `json:"total" gorm:"column:total"`
	Available    int64  `json:"available" gorm:"column:available"`
}
