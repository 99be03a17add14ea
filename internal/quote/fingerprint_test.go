package quote

import (
	"testing"

	"github.com/atlanteavila/sovos-tax-plugin/internal/address"
	"github.com/stretchr/testify/assert"
)

func sampleInput() FingerprintInput {
	return FingerprintInput{
		Destination: address.Address{
			Street:     "1600 Broadway",
			City:       "Denver",
			State:      "CO",
			PostalCode: "80202",
			Country:    "United States",
		},
		Lines: []FingerprintLine{
			{ProductID: 100, TaxCode: 12, Quantity: 2, Total: "60.00"},
			{ProductID: 200, TaxCode: 15, Quantity: 1, Total: "40.00"},
		},
		ShippingMethods: []string{"flat_rate"},
		ShippingCost:    "10.00",
		Coupons:         []string{"SUMMER", "GOLD5"},
		CustomerID:      42,
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint(sampleInput())
	b := Fingerprint(sampleInput())
	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "hex sha256")
}

func TestFingerprint_OrderInsensitiveCollections(t *testing.T) {
	base := Fingerprint(sampleInput())

	in := sampleInput()
	in.Coupons = []string{"GOLD5", "SUMMER"}
	assert.Equal(t, base, Fingerprint(in), "coupon order must not change the key")
}

func TestFingerprint_SensitiveToInputs(t *testing.T) {
	base := Fingerprint(sampleInput())

	in := sampleInput()
	in.Lines[0].Total = "60.01"
	assert.NotEqual(t, base, Fingerprint(in), "a one-cent change must miss the cache")

	in = sampleInput()
	in.Destination.State = "MN"
	assert.NotEqual(t, base, Fingerprint(in))

	in = sampleInput()
	in.Exempt = true
	assert.NotEqual(t, base, Fingerprint(in), "exemption context is part of the key")

	in = sampleInput()
	in.Lines[0], in.Lines[1] = in.Lines[1], in.Lines[0]
	assert.NotEqual(t, base, Fingerprint(in), "line order is preserved")
}
