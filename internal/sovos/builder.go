package sovos

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/atlanteavila/sovos-tax-plugin/internal/address"
	"github.com/shopspring/decimal"
)

// ShipmentMode selects how shipping cost is conveyed to the tax service:
// once at the document level (header) or as a synthetic extra line in a
// follow-up call (line).
type ShipmentMode string

const (
	ShipmentModeHeader ShipmentMode = "header"
	ShipmentModeLine   ShipmentMode = "line"
)

// ParseShipmentMode validates a mode string.
func ParseShipmentMode(s string) (ShipmentMode, error) {
	switch ShipmentMode(s) {
	case ShipmentModeHeader, ShipmentModeLine:
		return ShipmentMode(s), nil
	}
	return "", fmt.Errorf("please select a valid mode, currently modes supported: header, line")
}

// taxExemptCustomerName is the literal customer name sent on exempt orders.
const taxExemptCustomerName = "Tax Exempt"

// Line is one product line to be taxed.
type Line struct {
	ProductID int64
	TaxCode   int
	Quantity  int32

	// Total is the monetary line total across all quantities,
	// 4-fraction-digit precision on the wire.
	Total decimal.Decimal

	// HighPremium marks lines that exceed the spot-price thresholds in
	// states with tender rules; sent as custAttrbs.SPOTPRICE.
	HighPremium bool
}

// BuildParams carries everything the request body depends on.
type BuildParams struct {
	Company     string
	Origin      address.Address
	Destination address.Address

	// CustomerID of zero means a guest order; no customer code is sent.
	CustomerID int64

	TaxExempt bool
	Reversal  bool
	Audit     bool

	// OrderRef is the trnDocNum; required when Audit is set.
	OrderRef string

	// DocDate is the document date, YYYY-MM-DD.
	DocDate string

	Discounts     decimal.Decimal
	ShippingCost  decimal.Decimal
	Mode          ShipmentMode
	PaymentMethod string

	Lines []Line
}

// Builder constructs outbound request bodies.
type Builder struct {
	validator address.Validator
}

// NewBuilder creates a request builder using the given address validator.
func NewBuilder(v address.Validator) *Builder {
	return &Builder{validator: v}
}

// Build assembles the calcTax/doc request body. It returns the request and
// the products total (exact decimal sum of the gross amounts as sent,
// including any reversal sign flips), which post-processing needs for
// proportional fee reallocation.
func (b *Builder) Build(p BuildParams) (*Request, decimal.Decimal, error) {
	if p.Destination.IsZero() {
		return nil, decimal.Zero, ErrMissingAddress
	}
	if !b.validator.Validate(p.Origin) || !b.validator.Validate(p.Destination) {
		return nil, decimal.Zero, ErrInvalidAddress
	}
	if p.Audit && p.OrderRef == "" {
		return nil, decimal.Zero, ErrInvalidOrderReference
	}

	req := &Request{
		IsAudit:   p.Audit,
		Currency:  "USD",
		TrnDocNum: p.OrderRef,
		DocDate:   p.DocDate,
		Lines:     make([]LinePayload, 0, len(p.Lines)),
	}

	// A single general-discount bucket, populated only when discounts apply.
	if p.Discounts.IsPositive() {
		req.Discounts = map[string]json.Number{
			DiscountTypeGeneral: Amount(p.Discounts, 2),
		}
	}

	productsTotal := decimal.Zero
	for _, line := range p.Lines {
		payload, total := b.linePayload(p, line.Total, line.TaxCode)
		if line.HighPremium {
			payload.CustAttrbs = map[string]any{"SPOTPRICE": true}
		}
		productsTotal = productsTotal.Add(total)
		req.Lines = append(req.Lines, payload)
	}

	if p.PaymentMethod != "" {
		req.CustAttrbs = map[string]any{"PAYMENT_METHOD": p.PaymentMethod}
	}

	if p.Mode == ShipmentModeHeader && p.ShippingCost.IsPositive() {
		req.DeliveryAmt = Amount(p.ShippingCost, 2)
	}

	return req, productsTotal, nil
}

// ShippingFollowUp clones the primary request and appends one synthetic
// line carrying the shipping cost under the delivery tax code. Issued only
// in line mode and only after the primary call returned positive tax.
func (b *Builder) ShippingFollowUp(req *Request, p BuildParams) *Request {
	followUp := *req
	followUp.Lines = make([]LinePayload, len(req.Lines), len(req.Lines)+1)
	copy(followUp.Lines, req.Lines)

	payload, _ := b.linePayload(p, p.ShippingCost, DeliveryTaxCode)
	followUp.Lines = append(followUp.Lines, payload)
	return &followUp
}

// linePayload builds a single line, applying the reversal sign flip and
// the customer-code rules. Returns the payload and the signed total.
func (b *Builder) linePayload(p BuildParams, total decimal.Decimal, taxCode int) (LinePayload, decimal.Decimal) {
	if p.Reversal && total.IsPositive() {
		total = total.Neg()
	}

	payload := LinePayload{
		OrgCd:       p.Company,
		GoodSrvCd:   taxCode,
		GrossAmt:    Amount(total, 4),
		SFCity:      p.Origin.City,
		SFStateProv: p.Origin.State,
		SFPstlCd:    p.Origin.PostalCode,
		SFStNameNum: p.Origin.Street,
		SFCountry:   p.Origin.Country,
		STCity:      p.Destination.City,
		STStateProv: p.Destination.State,
		STPstlCd:    p.Destination.PostalCode,
		STStNameNum: p.Destination.Street,
		STCountry:   p.Destination.Country,
	}

	// Guest orders carry no customer code.
	if p.CustomerID != 0 {
		payload.CustVendCd = strconv.FormatInt(p.CustomerID, 10)
	}

	// Exempt orders always carry a customer code so the exemption on file
	// is considered; guests fall back to a fixed code.
	if p.TaxExempt {
		if p.CustomerID == 0 {
			payload.CustVendCd = "1"
		}
		payload.CustVendName = taxExemptCustomerName
	}

	return payload, total
}
