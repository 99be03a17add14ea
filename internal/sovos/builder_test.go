package sovos

import (
	"encoding/json"
	"testing"

	"github.com/atlanteavila/sovos-tax-plugin/internal/address"
	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOrigin = address.Address{
	Street:     "5757 Wayne Newton Blvd",
	City:       "Las Vegas",
	State:      "NV",
	PostalCode: "89119",
	Country:    "United States",
}

var testDestination = address.Address{
	Street:     "1600 Broadway",
	City:       "Denver",
	State:      "CO",
	PostalCode: "80202",
	Country:    "United States",
}

func baseParams() BuildParams {
	return BuildParams{
		Company:     "JM",
		Origin:      testOrigin,
		Destination: testDestination,
		CustomerID:  42,
		DocDate:     "2024-07-18",
		Mode:        ShipmentModeHeader,
		Lines: []Line{
			{ProductID: 100, TaxCode: 12, Quantity: 2, Total: decimal.RequireFromString("60.00")},
			{ProductID: 200, TaxCode: 15, Quantity: 1, Total: decimal.RequireFromString("40.00")},
		},
	}
}

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	req, productsTotal, err := b.Build(baseParams())
	require.NoError(t, err)

	assert.Equal(t, "USD", req.Currency)
	assert.False(t, req.IsAudit)
	assert.Equal(t, "2024-07-18", req.DocDate)
	require.Len(t, req.Lines, 2)

	first := req.Lines[0]
	assert.Equal(t, "JM", first.OrgCd)
	assert.Equal(t, 12, first.GoodSrvCd)
	assert.Equal(t, json.Number("60.0000"), first.GrossAmt)
	assert.Equal(t, "Las Vegas", first.SFCity)
	assert.Equal(t, "Denver", first.STCity)
	assert.Equal(t, "CO", first.STStateProv)
	assert.Equal(t, "42", first.CustVendCd)
	assert.Empty(t, first.CustVendName)

	assert.True(t, productsTotal.Equal(decimal.RequireFromString("100.00")),
		"products total should be the exact decimal sum, got %s", productsTotal)
}

func TestBuilder_ReversalSignFlip(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	forward, _, err := b.Build(baseParams())
	require.NoError(t, err)

	p := baseParams()
	p.Reversal = true
	reversed, total, err := b.Build(p)
	require.NoError(t, err)

	// Every line's gross amount is the negation of the forward value.
	require.Len(t, reversed.Lines, len(forward.Lines))
	for i := range forward.Lines {
		fwd := AsDecimal(forward.Lines[i].GrossAmt)
		rev := AsDecimal(reversed.Lines[i].GrossAmt)
		assert.True(t, rev.Equal(fwd.Neg()), "line %d: %s is not -%s", i, rev, fwd)
	}
	assert.True(t, total.Equal(decimal.RequireFromString("-100.00")))
}

func TestBuilder_DiscountBucket(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	p := baseParams()
	req, _, err := b.Build(p)
	require.NoError(t, err)
	assert.Nil(t, req.Discounts, "no discount bucket without discounts")

	p.Discounts = decimal.RequireFromString("5.25")
	req, _, err = b.Build(p)
	require.NoError(t, err)
	require.NotNil(t, req.Discounts)
	assert.Equal(t, json.Number("5.25"), req.Discounts[DiscountTypeGeneral])
	assert.Len(t, req.Discounts, 1, "a single general-discount bucket only")
}

func TestBuilder_HeaderShipping(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	p := baseParams()
	p.ShippingCost = decimal.RequireFromString("10.00")
	req, _, err := b.Build(p)
	require.NoError(t, err)
	assert.Equal(t, json.Number("10.00"), req.DeliveryAmt)

	p.Mode = ShipmentModeLine
	req, _, err = b.Build(p)
	require.NoError(t, err)
	assert.Empty(t, req.DeliveryAmt, "line mode must not set the header delivery amount")
}

func TestBuilder_ShippingFollowUp(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	p := baseParams()
	p.Mode = ShipmentModeLine
	p.ShippingCost = decimal.RequireFromString("12.50")

	req, _, err := b.Build(p)
	require.NoError(t, err)
	originalLines := len(req.Lines)

	followUp := b.ShippingFollowUp(req, p)

	require.Len(t, followUp.Lines, originalLines+1)
	last := followUp.Lines[len(followUp.Lines)-1]
	assert.Equal(t, DeliveryTaxCode, last.GoodSrvCd)
	assert.Equal(t, json.Number("12.5000"), last.GrossAmt)

	assert.Len(t, req.Lines, originalLines, "primary request must stay untouched")
}

func TestBuilder_TaxExemptOverride(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	p := baseParams()
	p.TaxExempt = true
	req, _, err := b.Build(p)
	require.NoError(t, err)
	assert.Equal(t, "42", req.Lines[0].CustVendCd)
	assert.Equal(t, "Tax Exempt", req.Lines[0].CustVendName)

	// Guest exempt order falls back to the fixed customer code.
	p.CustomerID = 0
	req, _, err = b.Build(p)
	require.NoError(t, err)
	assert.Equal(t, "1", req.Lines[0].CustVendCd)
	assert.Equal(t, "Tax Exempt", req.Lines[0].CustVendName)
}

func TestBuilder_GuestOrderOmitsCustomerCode(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	p := baseParams()
	p.CustomerID = 0
	req, _, err := b.Build(p)
	require.NoError(t, err)
	assert.Empty(t, req.Lines[0].CustVendCd)
}

func TestBuilder_ValidationErrors(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	t.Run("missing destination", func(t *testing.T) {
		p := baseParams()
		p.Destination = address.Address{}
		_, _, err := b.Build(p)
		assert.True(t, domain.IsCode(err, domain.EMISSINGADDRESS))
	})

	t.Run("invalid destination", func(t *testing.T) {
		p := baseParams()
		p.Destination.PostalCode = ""
		_, _, err := b.Build(p)
		assert.True(t, domain.IsCode(err, domain.EINVALIDADDRESS))
	})

	t.Run("invalid origin", func(t *testing.T) {
		p := baseParams()
		p.Origin.City = ""
		_, _, err := b.Build(p)
		assert.True(t, domain.IsCode(err, domain.EINVALIDADDRESS))
	})

	t.Run("audit without order reference", func(t *testing.T) {
		p := baseParams()
		p.Audit = true
		p.OrderRef = ""
		_, _, err := b.Build(p)
		assert.True(t, domain.IsCode(err, domain.EINVALIDORDERREF))
	})
}

func TestBuilder_PaymentMethodAttribute(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	p := baseParams()
	p.PaymentMethod = "paper_check"
	req, _, err := b.Build(p)
	require.NoError(t, err)
	assert.Equal(t, "paper_check", req.CustAttrbs["PAYMENT_METHOD"])
}

func TestBuilder_HighPremiumAttribute(t *testing.T) {
	b := NewBuilder(address.NewBasicValidator())

	p := baseParams()
	p.Lines[0].HighPremium = true
	req, _, err := b.Build(p)
	require.NoError(t, err)
	assert.Equal(t, true, req.Lines[0].CustAttrbs["SPOTPRICE"])
	assert.Nil(t, req.Lines[1].CustAttrbs)
}
