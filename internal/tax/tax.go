// Package tax implements the tax calculation engine: it gates requests
// through the exemption rules, builds and deduplicates outbound calls,
// and post-processes responses into a stable calculation result.
package tax

import (
	"context"
	"time"

	"github.com/atlanteavila/sovos-tax-plugin/internal/address"
	"github.com/atlanteavila/sovos-tax-plugin/internal/sovos"
	"github.com/shopspring/decimal"
)

// Calculator is the engine's public surface.
// Implementations: Engine, MockCalculator.
type Calculator interface {
	// Quote computes a non-persisting estimate. Results are cached and
	// deduplicated by fingerprint; concurrent identical quotes produce a
	// single outbound call.
	Quote(ctx context.Context, p Params) (*Result, error)

	// Calculate performs an audited calculation persisted upstream.
	// Requires an order reference; never served from the quote cache.
	Calculate(ctx context.Context, p Params) (*Result, error)

	// Refund performs an audited reversal: every positive line total is
	// negated on the wire. A zero DocDate defaults to today.
	Refund(ctx context.Context, p Params) (*Result, error)

	// TransactionDetail fetches a persisted upstream transaction by its
	// document id.
	TransactionDetail(ctx context.Context, docID string) (*sovos.Response, error)
}

// LineItem is one cart or order line as handed to the engine. Tax codes
// are resolved internally from the product identifier.
type LineItem struct {
	ProductID int64
	Quantity  int32

	// UnitPrice feeds the high-premium evaluation in tender-rule states.
	UnitPrice decimal.Decimal

	// Total is the monetary line total across all quantities.
	Total decimal.Decimal
}

// Params carries one calculation's inputs.
type Params struct {
	SessionID string

	// OrderID is required for audited calls and refunds.
	OrderID string

	// CustomerID of zero triggers the fallback chain: order metadata,
	// then guest.
	CustomerID int64
	Email      string

	Destination address.Address

	// State optionally overrides Destination.State before the reference
	// lookup; either a canonical code or a display name.
	State string

	ShippingCost    decimal.Decimal
	ShippingMethods []string
	Coupons         []string
	Fees            []string
	Discounts       decimal.Decimal
	PaymentMethod   string

	// Marketplace marks orders from channels that remit their own tax;
	// they bypass calculation entirely.
	Marketplace bool

	// Exemption context; customer standing is looked up separately.
	OrderExempt   bool
	SessionExempt bool
	VATExempt     bool

	// DocDate zero means today.
	DocDate time.Time

	Lines []LineItem
}

// StateFee describes a state-mandated delivery fee that was extracted
// from the tax total and must be reported separately.
type StateFee struct {
	Title  string
	URL    string
	Amount decimal.Decimal
}

// ProductCatalog resolves product tax attributes.
type ProductCatalog interface {
	// TaxCodeForProduct maps a product to its tax service goods code.
	TaxCodeForProduct(ctx context.Context, productID int64) (int, error)

	// ProductTaxExempt reports whether the product itself is flagged
	// exempt.
	ProductTaxExempt(ctx context.Context, productID int64) (bool, error)
}

// StateLookup resolves a state code or display name to its canonical
// code against the reference table.
type StateLookup interface {
	ResolveState(ctx context.Context, state string) (string, error)
}

// FeeStore looks up the per-state delivery fee descriptor.
type FeeStore interface {
	StateFee(ctx context.Context, state string) (*StateFee, bool, error)
}

// TenderPolicy evaluates the high-premium rule for tender-rule states.
type TenderPolicy interface {
	// HighPremium reports whether the line's unit price exceeds the
	// spot-price premium threshold for its metal type in the state.
	// States without tender rules always report false.
	HighPremium(ctx context.Context, productID int64, state string, unitPrice decimal.Decimal) (bool, error)
}

// OrderDirectory resolves order metadata the engine does not own.
type OrderDirectory interface {
	// CustomerForOrder returns the order's customer id, zero when the
	// order is a guest order or unknown.
	CustomerForOrder(ctx context.Context, orderID string) (int64, error)
}
