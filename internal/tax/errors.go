package tax

import "github.com/atlanteavila/sovos-tax-plugin/internal/domain"

// ErrQuoteUnavailable is returned when a competing worker held the lock
// for the same fingerprint and its result did not appear within the
// polling budget. Callers must treat this as "try again later".
var ErrQuoteUnavailable = &domain.Error{
	Code:    domain.EUNAVAILABLE,
	Op:      "tax.quote",
	Message: "quote not available yet, please retry",
}

func invalidStateError(state string) error {
	return domain.Errorf(domain.EINVALIDSTATE, "tax.resolveState",
		"no state matches %q", state)
}

func shippingReconciliationError(sent, received int) error {
	return domain.Errorf(domain.ESHIPRECONCILE, "tax.shippingFollowUp",
		"follow-up returned %d lines for %d sent; shipping tax cannot be trusted", received, sent)
}
