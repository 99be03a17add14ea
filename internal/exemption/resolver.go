package exemption

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/atlanteavila/sovos-tax-plugin/internal/kv"
)

// markerTTL bounds how long a persisted determination may answer for a
// session before the chain runs again.
const markerTTL = 30 * time.Minute

// Resolver runs the exemption rule chain.
type Resolver struct {
	certificates CertificateStore
	roles        RoleStore
	allowlist    Allowlist
	store        kv.Store
}

// NewResolver creates a resolver. The kv store holds per-session
// determination markers; pass nil to disable persistence.
func NewResolver(certificates CertificateStore, roles RoleStore, allowlist Allowlist, store kv.Store) *Resolver {
	return &Resolver{
		certificates: certificates,
		roles:        roles,
		allowlist:    allowlist,
		store:        store,
	}
}

func markerKey(sessionID string) string {
	return "sovos:session:" + sessionID + ":exemption"
}

// Resolve returns the exemption determination for the input. A persisted
// exempt marker for the session short-circuits the chain; otherwise the
// rules run in priority order, first match wins. Only exempt outcomes
// are persisted: a non-exempt pass must never pin a session to taxable
// when a later call carries an exemption flag.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Determination, error) {
	if det, ok, err := r.persisted(ctx, in.SessionID); err != nil {
		return Determination{}, err
	} else if ok && det.Exempt {
		return det, nil
	}

	det, err := r.evaluate(ctx, in)
	if err != nil {
		return Determination{}, err
	}

	if det.Exempt {
		if err := r.persist(ctx, in.SessionID, det); err != nil {
			return Determination{}, err
		}
	}
	return det, nil
}

func (r *Resolver) evaluate(ctx context.Context, in Input) (Determination, error) {
	if in.OrderExempt {
		return Determination{Exempt: true, Reason: ReasonOrderMeta}, nil
	}
	if in.SessionExempt {
		return Determination{Exempt: true, Reason: ReasonSessionFlag}, nil
	}
	if in.AllProductsExempt {
		return Determination{Exempt: true, Reason: ReasonProductMeta}, nil
	}
	if in.VATExempt {
		return Determination{Exempt: true, Reason: ReasonCustomerVATExempt}, nil
	}
	if r.allowlist.Contains(in.Email) {
		return Determination{Exempt: true, Reason: ReasonEmailAllowlist}, nil
	}

	if in.CustomerID != 0 {
		if r.certificates != nil && in.State != "" {
			ok, err := r.certificates.HasValidCertificate(ctx, in.CustomerID, in.State, in.AsOf)
			if err != nil {
				return Determination{}, domain.WrapError(err, domain.EINTERNAL, "exemption.resolve", "certificate lookup failed")
			}
			if ok {
				return Determination{Exempt: true, Reason: ReasonResellerCertificate}, nil
			}
		}

		if r.roles != nil {
			ok, err := r.roles.IsWholesale(ctx, in.CustomerID)
			if err != nil {
				return Determination{}, domain.WrapError(err, domain.EINTERNAL, "exemption.resolve", "role lookup failed")
			}
			if ok {
				return Determination{Exempt: true, Wholesale: true, Reason: ReasonWholesaleRole}, nil
			}
		}
	}

	return Determination{}, nil
}

func (r *Resolver) persisted(ctx context.Context, sessionID string) (Determination, bool, error) {
	if r.store == nil || sessionID == "" {
		return Determination{}, false, nil
	}
	raw, ok, err := r.store.Get(ctx, markerKey(sessionID))
	if err != nil {
		return Determination{}, false, domain.WrapError(err, domain.EINTERNAL, "exemption.resolve", "failed to read exemption marker")
	}
	if !ok {
		return Determination{}, false, nil
	}
	var det Determination
	if err := json.Unmarshal(raw, &det); err != nil {
		return Determination{}, false, nil
	}
	return det, true, nil
}

func (r *Resolver) persist(ctx context.Context, sessionID string, det Determination) error {
	if r.store == nil || sessionID == "" {
		return nil
	}
	raw, err := json.Marshal(det)
	if err != nil {
		return domain.Internal(err, "exemption.resolve", "failed to encode exemption marker")
	}
	if err := r.store.Set(ctx, markerKey(sessionID), raw, markerTTL); err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "exemption.resolve", "failed to store exemption marker")
	}
	return nil
}

// Forget drops the persisted marker for a session, forcing the chain to
// run again on the next resolve. Used when customer standing changes
// mid-session.
func (r *Resolver) Forget(ctx context.Context, sessionID string) error {
	if r.store == nil || sessionID == "" {
		return nil
	}
	if err := r.store.Delete(ctx, markerKey(sessionID)); err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "exemption.forget", "failed to delete exemption marker")
	}
	return nil
}
