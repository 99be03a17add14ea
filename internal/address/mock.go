package address

// MockValidator is a test implementation of Validator.
type MockValidator struct {
	ValidateFunc func(addr Address) bool
}

// NewMockValidator creates a mock validator that accepts every address
// unless ValidateFunc is set.
func NewMockValidator() *MockValidator {
	return &MockValidator{}
}

// Validate delegates to the configured function or returns true.
func (m *MockValidator) Validate(addr Address) bool {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(addr)
	}
	return true
}
