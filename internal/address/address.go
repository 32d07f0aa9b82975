package address

import "context"

// Validator defines the interface for address validation.
// Implementations can use external APIs (USPS, Lob, SmartyStreets) or local rules.
type Validator interface {
	// Validate checks if an address is complete and plausibly deliverable.
	// Even if IsValid is false, NormalizedAddress may contain corrections.
	Validate(ctx context.Context, addr Address) (*ValidationResult, error)
}

// Address represents a physical address for shipping or billing.
type Address struct {
	FullName     string `json:"full_name" validate:"required,max=200"`
	Company      string `json:"company,omitempty" validate:"max=200"`
	AddressLine1 string `json:"address_line1" validate:"required,max=200"`
	AddressLine2 string `json:"address_line2,omitempty" validate:"max=200"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state,omitempty" validate:"max=100"`
	PostalCode   string `json:"postal_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone        string `json:"phone,omitempty" validate:"omitempty,e164"`
}

// IsZero reports whether no field of the address has been filled in.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ValidationResult contains the outcome of address validation.
type ValidationResult struct {
	IsValid           bool
	NormalizedAddress *Address
	Errors            []ValidationError
	Warnings          []string
}

// ValidationError represents a specific validation error.
type ValidationError struct {
	Field   string
	Message string
}
