package address

import "strings"

// BasicValidator performs presence validation without external API calls.
// An address is valid iff street, city, state, postal code and country are
// all present and non-blank.
type BasicValidator struct{}

// NewBasicValidator creates a new basic address validator.
func NewBasicValidator() Validator {
	return &BasicValidator{}
}

// Validate checks that every required field is non-empty after trimming.
func (v *BasicValidator) Validate(addr Address) bool {
	fields := []string{addr.Street, addr.City, addr.State, addr.PostalCode, addr.Country}
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}
