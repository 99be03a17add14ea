package tax

import (
	"fmt"
	"strings"

	"github.com/atlanteavila/sovos-tax-plugin/internal/exemption"
	"github.com/atlanteavila/sovos-tax-plugin/internal/sovos"
	"github.com/shopspring/decimal"
)

// ResultLine is the per-line view consumed by rate creation: the amount
// that was taxed and the tax to collect on it (after any delivery-fee
// reallocation).
type ResultLine struct {
	LineNumber  int
	Taxable     decimal.Decimal
	Collectable decimal.Decimal
}

// Result is the outcome of one calculation. Zero-value monetary fields
// mean zero, not "unknown"; a bypassed result carries no request or
// response.
type Result struct {
	// Bypassed is set when no outbound call was attempted.
	Bypassed     bool
	BypassReason string

	Exempt          bool
	Wholesale       bool
	ExemptionReason exemption.Reason

	// Request and Response are the raw wire exchange, kept for audit.
	Request  *sovos.Request
	Response *sovos.Response

	// TransactionID is the upstream document id; empty or "0" means the
	// transaction was not persisted upstream.
	TransactionID string

	// ProductsTax is the product tax after fee reallocation;
	// OriginalProductsTax is the upstream total before it.
	ProductsTax         decimal.Decimal
	OriginalProductsTax decimal.Decimal

	AutomaticDeliveryFee decimal.Decimal
	ShippingTax          decimal.Decimal
	StateFee             *StateFee

	Lines []ResultLine
}

// TotalTax is the amount to collect: product tax plus the automatic
// delivery fee, at monetary precision.
func (r *Result) TotalTax() decimal.Decimal {
	return r.ProductsTax.Add(r.AutomaticDeliveryFee).Round(2)
}

// AmountToCollect is an alias kept for order-persistence consumers.
func (r *Result) AmountToCollect() decimal.Decimal {
	return r.TotalTax()
}

// Persisted reports whether the transaction was recorded upstream.
func (r *Result) Persisted() bool {
	return r.TransactionID != "" && r.TransactionID != "0"
}

// Note renders a plain-text summary for order annotations.
func (r *Result) Note() string {
	if r.Bypassed {
		if r.Exempt {
			return fmt.Sprintf("Sovos: calculation skipped, order is tax exempt (%s).", r.ExemptionReason)
		}
		return fmt.Sprintf("Sovos: calculation skipped (%s).", r.BypassReason)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sovos: tax calculated, amount to collect %s (products %s",
		r.TotalTax().StringFixed(2), r.ProductsTax.StringFixed(2))
	if r.AutomaticDeliveryFee.IsPositive() {
		fmt.Fprintf(&b, ", delivery fee %s", r.AutomaticDeliveryFee.StringFixed(2))
	}
	if r.ShippingTax.IsPositive() {
		fmt.Fprintf(&b, ", shipping tax %s", r.ShippingTax.StringFixed(2))
	}
	b.WriteString(")")
	if r.Persisted() {
		fmt.Fprintf(&b, ", document %s", r.TransactionID)
	}
	b.WriteString(".")
	return b.String()
}
