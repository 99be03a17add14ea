package exemption

import (
	"context"
	"testing"
	"time"

	"github.com/atlanteavila/sovos-tax-plugin/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_RulePriority(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, 7, 18, 0, 0, 0, 0, time.UTC)

	certs := &MockCertificateStore{
		HasValidCertificateFunc: func(ctx context.Context, customerID int64, state string, _ time.Time) (bool, error) {
			return customerID == 42 && state == "TX", nil
		},
	}
	roles := &MockRoleStore{
		IsWholesaleFunc: func(ctx context.Context, customerID int64) (bool, error) {
			return customerID == 77, nil
		},
	}
	allowlist := Allowlist{
		Emails:  []string{"buyer@museum.org"},
		Domains: []string{"resellers.example"},
	}

	r := NewResolver(certs, roles, allowlist, nil)

	tests := []struct {
		name string
		in   Input
		want Determination
	}{
		{
			name: "order flag wins over everything",
			in:   Input{CustomerID: 42, State: "TX", AsOf: asOf, OrderExempt: true, SessionExempt: true},
			want: Determination{Exempt: true, Reason: ReasonOrderMeta},
		},
		{
			name: "session flag",
			in:   Input{CustomerID: 42, State: "TX", AsOf: asOf, SessionExempt: true},
			want: Determination{Exempt: true, Reason: ReasonSessionFlag},
		},
		{
			name: "all products exempt",
			in:   Input{AllProductsExempt: true},
			want: Determination{Exempt: true, Reason: ReasonProductMeta},
		},
		{
			name: "vat exempt customer",
			in:   Input{CustomerID: 5, VATExempt: true},
			want: Determination{Exempt: true, Reason: ReasonCustomerVATExempt},
		},
		{
			name: "allowlisted email",
			in:   Input{Email: "Buyer@Museum.ORG"},
			want: Determination{Exempt: true, Reason: ReasonEmailAllowlist},
		},
		{
			name: "allowlisted domain",
			in:   Input{Email: "anyone@resellers.example"},
			want: Determination{Exempt: true, Reason: ReasonEmailAllowlist},
		},
		{
			name: "reseller certificate for the destination state",
			in:   Input{CustomerID: 42, State: "TX", AsOf: asOf},
			want: Determination{Exempt: true, Reason: ReasonResellerCertificate},
		},
		{
			name: "no certificate in another state",
			in:   Input{CustomerID: 42, State: "CO", AsOf: asOf},
			want: Determination{},
		},
		{
			name: "wholesale role",
			in:   Input{CustomerID: 77, State: "CO", AsOf: asOf},
			want: Determination{Exempt: true, Wholesale: true, Reason: ReasonWholesaleRole},
		},
		{
			name: "guest with nothing matching",
			in:   Input{Email: "guest@shopper.example"},
			want: Determination{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_PersistsDetermination(t *testing.T) {
	ctx := context.Background()

	calls := 0
	roles := &MockRoleStore{
		IsWholesaleFunc: func(ctx context.Context, customerID int64) (bool, error) {
			calls++
			return true, nil
		},
	}

	r := NewResolver(&MockCertificateStore{}, roles, Allowlist{}, kv.NewMemoryStore())

	in := Input{CustomerID: 77, SessionID: "sess-1"}

	first, err := r.Resolve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, ReasonWholesaleRole, first.Reason)

	second, err := r.Resolve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "the second resolve must come from the session marker")

	// Forget forces a fresh evaluation.
	require.NoError(t, r.Forget(ctx, "sess-1"))
	_, err = r.Resolve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestResolver_NonExemptOutcomeIsNotPersisted(t *testing.T) {
	ctx := context.Background()

	calls := 0
	certs := &MockCertificateStore{
		HasValidCertificateFunc: func(ctx context.Context, _ int64, _ string, _ time.Time) (bool, error) {
			calls++
			return false, nil
		},
	}

	r := NewResolver(certs, &MockRoleStore{}, Allowlist{}, kv.NewMemoryStore())
	in := Input{CustomerID: 42, State: "CO", SessionID: "sess-1"}

	det, err := r.Resolve(ctx, in)
	require.NoError(t, err)
	assert.False(t, det.Exempt)
	assert.Equal(t, 1, calls)

	// A taxable pass must not pin the session: the next call carries the
	// order flag and wins.
	det, err = r.Resolve(ctx, Input{CustomerID: 42, State: "CO", SessionID: "sess-1", OrderExempt: true})
	require.NoError(t, err)
	assert.Equal(t, Determination{Exempt: true, Reason: ReasonOrderMeta}, det)

	// The chain runs again for every non-exempt call.
	_, err = r.Resolve(ctx, Input{CustomerID: 42, State: "CO", SessionID: "sess-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAllowlist_Contains(t *testing.T) {
	a := Allowlist{Emails: []string{"vip@shop.example"}, Domains: []string{"gov.example"}}

	assert.True(t, a.Contains("vip@shop.example"))
	assert.True(t, a.Contains("  VIP@SHOP.EXAMPLE  "))
	assert.True(t, a.Contains("clerk@gov.example"))
	assert.False(t, a.Contains("clerk@notgov.example"))
	assert.False(t, a.Contains(""))
	assert.False(t, a.Contains("no-at-sign"))
}
