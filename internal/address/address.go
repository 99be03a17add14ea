package address

// Validator defines the interface for postal address validation.
// Implementations must be side-effect free; the tax service rejects
// requests carrying incomplete addresses, so both the fixed origin and
// the inbound destination are checked before anything goes on the wire.
type Validator interface {
	// Validate reports whether the address is complete enough to send
	// upstream. No network calls, no normalization beyond trimming.
	Validate(addr Address) bool
}

// Address represents a physical address for tax purposes.
// All five fields are required for an address to be valid.
type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// IsZero reports whether no field of the address has been set.
// Used to distinguish "destination absent entirely" from "destination
// present but incomplete".
func (a Address) IsZero() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.PostalCode == "" && a.Country == ""
}
