package enums

import "fmt"

// LockerSize classifies the physical capacity of a locker.
type LockerSize string

const (
	LockerSizeSmall  LockerSize = "small"
	LockerSizeMedium LockerSize = "medium"
	LockerSizeLarge  LockerSize = "large"
)

var validLockerSizes = []LockerSize{
	LockerSizeSmall,
	LockerSizeMedium,
	LockerSizeLarge,
}

// String implements fmt.Stringer.
func (s LockerSize) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LockerSize.
func (s LockerSize) IsValid() bool {
	for _, candidate := range validLockerSizes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLockerSize converts raw input into a LockerSize.
func ParseLockerSize(value string) (LockerSize, error) {
	for _, candidate := range validLockerSizes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid locker size %q", value)
}
