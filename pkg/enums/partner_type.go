package enums

import "fmt"

// PartnerType classifies the host site a locker is installed at.
type PartnerType string

const (
	PartnerTypeCommerce  PartnerType = "commerce"
	PartnerTypeBureau    PartnerType = "bureau"
	PartnerTypeResidence PartnerType = "residence"
)

var validPartnerTypes = []PartnerType{
	PartnerTypeCommerce,
	PartnerTypeBureau,
	PartnerTypeResidence,
}

// String implements fmt.Stringer.
func (p PartnerType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PartnerType.
func (p PartnerType) IsValid() bool {
	for _, candidate := range validPartnerTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePartnerType converts raw input into a PartnerType.
func ParsePartnerType(value string) (PartnerType, error) {
	for _, candidate := range validPartnerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid partner type %q", value)
}
