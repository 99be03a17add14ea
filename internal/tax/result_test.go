package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestResult_TotalTax(t *testing.T) {
	r := &Result{
		ProductsTax:          decimal.RequireFromString("8.00"),
		AutomaticDeliveryFee: decimal.RequireFromString("0.50"),
	}
	assert.Equal(t, "8.50", r.TotalTax().StringFixed(2))
	assert.True(t, r.AmountToCollect().Equal(r.TotalTax()))
}

func TestResult_Persisted(t *testing.T) {
	assert.False(t, (&Result{}).Persisted())
	assert.False(t, (&Result{TransactionID: "0"}).Persisted(), `sentinel "0" means not persisted upstream`)
	assert.True(t, (&Result{TransactionID: "9001"}).Persisted())
}

func TestResult_Note(t *testing.T) {
	r := &Result{
		TransactionID:        "9001",
		ProductsTax:          decimal.RequireFromString("8.00"),
		AutomaticDeliveryFee: decimal.RequireFromString("0.50"),
		ShippingTax:          decimal.RequireFromString("0.80"),
	}
	note := r.Note()
	assert.Contains(t, note, "8.50")
	assert.Contains(t, note, "delivery fee 0.50")
	assert.Contains(t, note, "shipping tax 0.80")
	assert.Contains(t, note, "document 9001")

	plain := &Result{ProductsTax: decimal.RequireFromString("2.00")}
	assert.NotContains(t, plain.Note(), "delivery fee")
	assert.NotContains(t, plain.Note(), "document")
}
