package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LockerStats carries usage counters kept alongside each locker, stored as jsonb.
type LockerStats struct {
	TotalReservations int        `json:"total_reservations"`
	AverageRating     float64    `json:"average_rating"`
	LastUsed          *time.Time `json:"last_used,omitempty"`
}

// Value implements driver.Valuer.
func (s LockerStats) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *LockerStats) Scan(value interface{}) error {
	if value == nil {
		*s = LockerStats{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("locker stats: unsupported scan type %T", value)
	}
}
