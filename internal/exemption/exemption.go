// Package exemption decides whether an order is exempt from tax before
// any outbound calculation is attempted. Rules run in a fixed priority
// order and the first match wins; the determination is persisted per
// session so repeated checks within a checkout do not redo lookups.
package exemption

import (
	"context"
	"strings"
	"time"
)

// Reason identifies which rule granted the exemption.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonOrderMeta           Reason = "order_meta"
	ReasonSessionFlag         Reason = "session_flag"
	ReasonProductMeta         Reason = "product_meta"
	ReasonCustomerVATExempt   Reason = "customer_vat_exempt"
	ReasonEmailAllowlist      Reason = "customer_email_allowlist"
	ReasonResellerCertificate Reason = "reseller_certificate"
	ReasonWholesaleRole       Reason = "wholesale_role"
)

// Determination is the outcome of the rule chain.
type Determination struct {
	Exempt    bool   `json:"exempt"`
	Wholesale bool   `json:"wholesale"`
	Reason    Reason `json:"reason"`
}

// Input carries everything the rules inspect. Flags derived from order
// and cart state are resolved by the caller; customer standing is looked
// up through the stores.
type Input struct {
	CustomerID int64
	Email      string

	// State is the canonical destination state code; certificates are
	// issued per state.
	State string

	// AsOf is the date certificates are validated against.
	AsOf time.Time

	SessionID string

	// OrderExempt and SessionExempt are explicit markers set earlier in
	// the order's or session's lifetime.
	OrderExempt   bool
	SessionExempt bool

	// AllProductsExempt is true when every cart line carries an exempt
	// product marker.
	AllProductsExempt bool

	// VATExempt is the customer's VAT-exemption flag.
	VATExempt bool
}

// CertificateStore looks up reseller exemption certificates.
type CertificateStore interface {
	// HasValidCertificate reports whether the customer holds a reseller
	// certificate for the state that is valid as of the given date.
	HasValidCertificate(ctx context.Context, customerID int64, state string, asOf time.Time) (bool, error)
}

// RoleStore looks up customer role membership.
type RoleStore interface {
	IsWholesale(ctx context.Context, customerID int64) (bool, error)
}

// Allowlist holds the configured exempt emails and domains.
type Allowlist struct {
	Emails  []string
	Domains []string
}

// Contains reports whether the email, or its domain, is allowlisted.
// Matching is case-insensitive.
func (a Allowlist) Contains(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, e := range a.Emails {
		if strings.ToLower(e) == email {
			return true
		}
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, d := range a.Domains {
		if strings.ToLower(d) == domain {
			return true
		}
	}
	return false
}
