package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/casierlabs/casier-backend/pkg/enums"
)

// Partner describes the host business a locker is installed at, stored as jsonb.
type Partner struct {
	Name string            `json:"name,omitempty"`
	Type enums.PartnerType `json:"type,omitempty"`
}

// Value implements driver.Valuer.
func (p Partner) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Partner) Scan(value interface{}) error {
	if value == nil {
		*p = Partner{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("partner: unsupported scan type %T", value)
	}
}
