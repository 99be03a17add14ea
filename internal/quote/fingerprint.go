// Package quote provides deterministic fingerprinting of quote inputs,
// a layered cache of tax responses and a short-lived per-fingerprint
// lock that deduplicates concurrent outbound calls.
package quote

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/atlanteavila/sovos-tax-plugin/internal/address"
)

// FingerprintLine is the cache-relevant view of one cart line.
type FingerprintLine struct {
	ProductID int64  `json:"product_id"`
	TaxCode   int    `json:"tax_code"`
	Quantity  int32  `json:"quantity"`
	Total     string `json:"total"`
}

// FingerprintInput collects everything a quote depends on. Two inputs
// that hash equal are guaranteed to produce the same outbound request,
// so the first response can safely answer both.
type FingerprintInput struct {
	Destination     address.Address   `json:"destination"`
	Lines           []FingerprintLine `json:"lines"`
	ShippingMethods []string          `json:"shipping_methods"`
	ShippingCost    string            `json:"shipping_cost"`
	Coupons         []string          `json:"coupons"`
	Fees            []string          `json:"fees"`
	CustomerID      int64             `json:"customer_id"`
	Exempt          bool              `json:"exempt"`
}

// Fingerprint returns a hex SHA-256 over the canonical encoding of in.
// Unordered collections are sorted first so that cart-plugin ordering
// quirks do not defeat the cache. Line order is preserved: it is stable
// within a session and feeds line-numbered results.
func Fingerprint(in FingerprintInput) string {
	sort.Strings(in.ShippingMethods)
	sort.Strings(in.Coupons)
	sort.Strings(in.Fees)

	// Marshal of a struct with no maps is deterministic.
	b, err := json.Marshal(in)
	if err != nil {
		// Only unrepresentable values can fail here and the input has none.
		panic(err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
