// Package postgres implements the reference-data lookups the engine
// consumes: product tax codes, state resolution, fee descriptors,
// reseller certificates, wholesale roles, tender rules and the exempt
// email allowlist.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/atlanteavila/sovos-tax-plugin/internal/exemption"
	"github.com/atlanteavila/sovos-tax-plugin/internal/tax"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// defaultGoodsCode is sent for products with no explicit mapping.
const defaultGoodsCode = 1

// DBTX is the query surface Lookups needs; *pgxpool.Pool satisfies it.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Lookups implements the engine's reference-data ports over PostgreSQL.
type Lookups struct {
	db DBTX
}

// Compile-time checks against the ports Lookups serves.
var (
	_ tax.ProductCatalog         = (*Lookups)(nil)
	_ tax.StateLookup            = (*Lookups)(nil)
	_ tax.FeeStore               = (*Lookups)(nil)
	_ tax.TenderPolicy           = (*Lookups)(nil)
	_ exemption.CertificateStore = (*Lookups)(nil)
	_ exemption.RoleStore        = (*Lookups)(nil)
)

// NewLookups creates the PostgreSQL-backed lookups.
func NewLookups(db DBTX) *Lookups {
	return &Lookups{db: db}
}

// TaxCodeForProduct implements tax.ProductCatalog. Unmapped products
// fall back to the general goods code.
func (l *Lookups) TaxCodeForProduct(ctx context.Context, productID int64) (int, error) {
	var code int
	err := l.db.QueryRow(ctx, `
		SELECT sc.code
		FROM tax_product_sovos tps
		JOIN sovos_codes sc ON sc.id = tps.sovos_code_id
		WHERE tps.product_id = $1`, productID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return defaultGoodsCode, nil
	}
	if err != nil {
		return 0, domain.Internal(err, "postgres.taxCode", "failed to look up product tax code")
	}
	return code, nil
}

// ProductTaxExempt implements tax.ProductCatalog.
func (l *Lookups) ProductTaxExempt(ctx context.Context, productID int64) (bool, error) {
	var exempt bool
	err := l.db.QueryRow(ctx, `
		SELECT tax_exempt FROM tax_product_sovos WHERE product_id = $1`, productID).Scan(&exempt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.Internal(err, "postgres.productExempt", "failed to look up product exemption")
	}
	return exempt, nil
}

// ResolveState implements tax.StateLookup: matches either the canonical
// code or the display name, case-insensitively.
func (l *Lookups) ResolveState(ctx context.Context, state string) (string, error) {
	var code string
	err := l.db.QueryRow(ctx, `
		SELECT code FROM tax_state
		WHERE code = UPPER($1) OR LOWER(name) = LOWER($1)`, state).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.NotFound("postgres.resolveState", "state", state)
	}
	if err != nil {
		return "", domain.Internal(err, "postgres.resolveState", "failed to resolve state")
	}
	return code, nil
}

// StateFee implements tax.FeeStore.
func (l *Lookups) StateFee(ctx context.Context, state string) (*tax.StateFee, bool, error) {
	var (
		title  string
		url    string
		amount string
	)
	err := l.db.QueryRow(ctx, `
		SELECT COALESCE(fee_title, ''), COALESCE(fee_url, ''), COALESCE(fee_amount, 0)::text
		FROM tax_state
		WHERE code = $1 AND fee_amount IS NOT NULL`, state).Scan(&title, &url, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.Internal(err, "postgres.stateFee", "failed to look up state fee")
	}

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, false, domain.Internal(err, "postgres.stateFee", "malformed state fee amount")
	}
	return &tax.StateFee{Title: title, URL: url, Amount: amt}, true, nil
}

// HighPremium implements tax.TenderPolicy: a legal-tender product in a
// tender-rule state is high premium when its unit price exceeds the
// spot price times the state's premium multiplier.
func (l *Lookups) HighPremium(ctx context.Context, productID int64, state string, unitPrice decimal.Decimal) (bool, error) {
	var (
		multiplier string
		spot       string
	)
	err := l.db.QueryRow(ctx, `
		SELECT sr.premium_multiplier::text, sp.price::text
		FROM tax_product_sovos tps
		JOIN sovos_state_tender_rules sr ON sr.state_code = $2 AND sr.metal = tps.metal
		JOIN spot_prices sp ON sp.metal = tps.metal
		WHERE tps.product_id = $1 AND tps.legal_tender`, productID, state).Scan(&multiplier, &spot)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.Internal(err, "postgres.highPremium", "failed to evaluate tender rule")
	}

	mult, err := decimal.NewFromString(multiplier)
	if err != nil {
		return false, domain.Internal(err, "postgres.highPremium", "malformed premium multiplier")
	}
	price, err := decimal.NewFromString(spot)
	if err != nil {
		return false, domain.Internal(err, "postgres.highPremium", "malformed spot price")
	}

	return unitPrice.GreaterThan(price.Mul(mult)), nil
}

// HasValidCertificate implements exemption.CertificateStore.
func (l *Lookups) HasValidCertificate(ctx context.Context, customerID int64, state string, asOf time.Time) (bool, error) {
	var ok bool
	err := l.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reseller
			WHERE customer_id = $1 AND state_code = $2
			  AND (expires_at IS NULL OR expires_at >= $3)
		)`, customerID, state, asOf).Scan(&ok)
	if err != nil {
		return false, domain.Internal(err, "postgres.certificate", "failed to look up reseller certificate")
	}
	return ok, nil
}

// IsWholesale implements exemption.RoleStore.
func (l *Lookups) IsWholesale(ctx context.Context, customerID int64) (bool, error) {
	var ok bool
	err := l.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM wholesale_customers WHERE customer_id = $1)`, customerID).Scan(&ok)
	if err != nil {
		return false, domain.Internal(err, "postgres.wholesale", "failed to look up wholesale role")
	}
	return ok, nil
}

// LoadAllowlist reads the configured exempt emails and domains. Loaded
// once at startup; the table changes rarely.
func (l *Lookups) LoadAllowlist(ctx context.Context) (exemption.Allowlist, error) {
	rows, err := l.db.Query(ctx, `SELECT entry, is_domain FROM sovos_exempt_emails`)
	if err != nil {
		return exemption.Allowlist{}, domain.Internal(err, "postgres.allowlist", "failed to load exempt emails")
	}
	defer rows.Close()

	var allowlist exemption.Allowlist
	for rows.Next() {
		var (
			entry    string
			isDomain bool
		)
		if err := rows.Scan(&entry, &isDomain); err != nil {
			return exemption.Allowlist{}, domain.Internal(err, "postgres.allowlist", "failed to scan exempt email")
		}
		if isDomain {
			allowlist.Domains = append(allowlist.Domains, entry)
		} else {
			allowlist.Emails = append(allowlist.Emails, entry)
		}
	}
	if err := rows.Err(); err != nil {
		return exemption.Allowlist{}, domain.Internal(err, "postgres.allowlist", "failed to read exempt emails")
	}
	return allowlist, nil
}
