package address_test

import (
	"testing"

	"github.com/atlanteavila/sovos-tax-plugin/internal/address"
	"github.com/stretchr/testify/assert"
)

func TestBasicValidator(t *testing.T) {
	valid := address.Address{
		Street:     "5757 Wayne Newton Blvd",
		City:       "Las Vegas",
		State:      "NV",
		PostalCode: "89119",
		Country:    "United States",
	}

	tests := []struct {
		name   string
		mutate func(a *address.Address)
		want   bool
	}{
		{"complete address", func(a *address.Address) {}, true},
		{"missing street", func(a *address.Address) { a.Street = "" }, false},
		{"missing city", func(a *address.Address) { a.City = "" }, false},
		{"missing state", func(a *address.Address) { a.State = "" }, false},
		{"missing postal code", func(a *address.Address) { a.PostalCode = "" }, false},
		{"missing country", func(a *address.Address) { a.Country = "" }, false},
		{"whitespace-only field", func(a *address.Address) { a.City = "   " }, false},
	}

	v := address.NewBasicValidator()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := valid
			tt.mutate(&addr)
			assert.Equal(t, tt.want, v.Validate(addr))
		})
	}
}

func TestAddress_IsZero(t *testing.T) {
	assert.True(t, address.Address{}.IsZero())
	assert.False(t, address.Address{City: "Denver"}.IsZero())
}
