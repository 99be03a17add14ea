package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"domain error", Errorf(EINVALIDSTATE, "tax.calculate", "no such state"), EINVALIDSTATE},
		{"wrapped domain error", fmt.Errorf("outer: %w", Errorf(ETRANSPORT, "sovos.calctax", "connect refused")), ETRANSPORT},
		{"plain error", errors.New("boom"), EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.expected {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorMessage_HidesInternalDetails(t *testing.T) {
	err := Internal(errors.New("pq: connection reset"), "lookup.state", "state lookup failed")
	msg := ErrorMessage(err)
	if msg != "An internal error occurred. Please try again later." {
		t.Errorf("internal error leaked details: %q", msg)
	}

	typed := Errorf(EMISSINGADDRESS, "tax.calculate", "from and to shipping address are required")
	if got := ErrorMessage(typed); got != "from and to shipping address are required" {
		t.Errorf("typed error message = %q", got)
	}
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	err := WrapError(inner, ETRANSPORT, "sovos.calctax", "tax service unreachable")

	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to match with errors.Is")
	}
	if !IsCode(err, ETRANSPORT) {
		t.Error("expected transport code on wrapped error")
	}
}
