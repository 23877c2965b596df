package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/casierlabs/casier-backend/pkg/enums"
	"github.com/casierlabs/casier-backend/pkg/types"
)

// Locker represents a rentable storage unit at a partner site.
type Locker struct {
	ID          uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Number      string             `gorm:"column:number;type:text;not null;uniqueIndex"`
	Size        enums.LockerSize   `gorm:"column:size;type:locker_size;not null"`
	Status      enums.LockerStatus `gorm:"column:status;type:locker_status;not null;default:'available'"`
	PricePerDay decimal.Decimal    `gorm:"column:price_per_day;type:numeric(10,2);not null"`
	Address     types.Address      `gorm:"column:address;type:jsonb;not null"`
	Latitude    float64            `gorm:"column:latitude;not null"`
	Longitude   float64            `gorm:"column:longitude;not null"`
	Partner     *types.Partner     `gorm:"column:partner;type:jsonb"`
	Accessible  bool               `gorm:"column:accessible;not null;default:false"`
	Stats       types.LockerStats  `gorm:"column:stats;type:jsonb;not null;default:'{}'"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
