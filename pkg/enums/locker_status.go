package enums

import "fmt"

// LockerStatus tracks the availability of a locker.
type LockerStatus string

const (
	LockerStatusAvailable   LockerStatus = "available"
	LockerStatusReserved    LockerStatus = "reserved"
	LockerStatusOccupied    LockerStatus = "occupied"
	LockerStatusMaintenance LockerStatus = "maintenance"
)

var validLockerStatuses = []LockerStatus{
	LockerStatusAvailable,
	LockerStatusReserved,
	LockerStatusOccupied,
	LockerStatusMaintenance,
}

// String implements fmt.Stringer.
func (s LockerStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LockerStatus.
func (s LockerStatus) IsValid() bool {
	for _, candidate := range validLockerStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLockerStatus converts raw input into a LockerStatus.
func ParseLockerStatus(value string) (LockerStatus, error) {
	for _, candidate := range validLockerStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid locker status %q", value)
}
