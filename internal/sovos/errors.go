package sovos

import "github.com/atlanteavila/sovos-tax-plugin/internal/domain"

// Pre-built request validation errors. Each aborts the calculation before
// anything is sent upstream.
var (
	// ErrMissingAddress indicates the destination data was absent entirely.
	ErrMissingAddress = &domain.Error{
		Code:    domain.EMISSINGADDRESS,
		Op:      "sovos.build",
		Message: "from and to shipping address are required",
	}

	// ErrInvalidAddress indicates the origin or destination failed validation.
	ErrInvalidAddress = &domain.Error{
		Code:    domain.EINVALIDADDRESS,
		Op:      "sovos.build",
		Message: "the address is invalid",
	}

	// ErrInvalidOrderReference indicates an audited call lacked an order identifier.
	ErrInvalidOrderReference = &domain.Error{
		Code:    domain.EINVALIDORDERREF,
		Op:      "sovos.build",
		Message: "invalid order number",
	}
)
