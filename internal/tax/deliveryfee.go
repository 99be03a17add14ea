package tax

import (
	"context"
	"strings"

	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/atlanteavila/sovos-tax-plugin/internal/sovos"
	"github.com/atlanteavila/sovos-tax-plugin/internal/telemetry"
	"github.com/shopspring/decimal"
)

// Reallocator extracts state-mandated automatic delivery fees that the
// tax service folds into jurisdiction results, subtracts them from the
// product tax, and recomputes the shipping-tax contribution from the
// remaining jurisdiction rates.
type Reallocator struct {
	// markers maps a state code to the jurisdiction-name fragments that
	// identify its automatic fee, e.g. CO -> "Retail Delivery Fees".
	markers map[string][]string
	fees    FeeStore
}

// NewReallocator creates a reallocator for the configured fee states.
func NewReallocator(markers map[string][]string, fees FeeStore) *Reallocator {
	return &Reallocator{markers: markers, fees: fees}
}

// AppliesTo reports whether the destination state has an automatic fee.
func (r *Reallocator) AppliesTo(state string) bool {
	return len(r.markers[state]) > 0
}

// Reallocation is the adjusted view of a response after fee extraction.
// LineTaxes is index-aligned with the response's line results; the
// response itself is never mutated since it may be shared via the cache.
type Reallocation struct {
	ProductsTax          decimal.Decimal
	AutomaticDeliveryFee decimal.Decimal
	ShippingTax          decimal.Decimal
	StateFee             *StateFee
	LineTaxes            []decimal.Decimal
}

// Apply runs the reallocation over a response. productsTotal is the
// exact sum of the gross amounts sent; shippingCost the header shipping
// amount. All arithmetic is exact decimal: money rounds to 2 places,
// rates and proportions to 4.
//
// When several lines carry a matching jurisdiction the last one wins as
// the reported fee amount, while every match is still subtracted from
// the totals.
func (r *Reallocator) Apply(ctx context.Context, resp *sovos.Response, state string, productsTotal, shippingCost decimal.Decimal) (*Reallocation, error) {
	markers := r.markers[state]

	aggregate := resp.TotalTax()
	fee := decimal.Zero
	feeFound := false
	shippingTax := decimal.Zero
	lineTaxes := make([]decimal.Decimal, len(resp.LnRslts))

	for i, line := range resp.LnRslts {
		lineTax := sovos.AsDecimal(line.TxAmt)
		lineTaxes[i] = lineTax
		if !lineTax.IsPositive() {
			continue
		}

		productPercentage := decimal.Zero
		if productsTotal.IsPositive() {
			productPercentage = sovos.AsDecimal(line.GrossAmt).DivRound(productsTotal, 4)
		}
		shippingProportion := productPercentage.Mul(shippingCost).Round(4)

		lineRate := decimal.Zero
		for _, jur := range line.JurRslts {
			if matchesMarker(jur.TxName, markers) {
				feeAmt := sovos.AsDecimal(jur.TxAmt)
				lineTax = floorZero(lineTax.Sub(feeAmt).Round(2))
				aggregate = floorZero(aggregate.Sub(feeAmt).Round(2))
				fee = feeAmt
				feeFound = true
				continue
			}
			lineRate = lineRate.Add(sovos.AsDecimal(jur.TxRate)).Round(4)
		}

		lineTaxes[i] = lineTax
		shippingTax = shippingTax.Add(shippingProportion.Mul(lineRate)).Round(4)
	}

	re := &Reallocation{
		ProductsTax:          aggregate,
		AutomaticDeliveryFee: fee,
		ShippingTax:          shippingTax,
		LineTaxes:            lineTaxes,
	}

	if feeFound {
		telemetry.DeliveryFees.Inc()
		if r.fees != nil {
			desc, ok, err := r.fees.StateFee(ctx, state)
			if err != nil {
				return nil, domain.WrapError(err, domain.EINTERNAL, "tax.reallocate", "state fee lookup failed")
			}
			if ok {
				re.StateFee = desc
			}
		}
	}
	return re, nil
}

func matchesMarker(name string, markers []string) bool {
	lower := strings.ToLower(name)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
