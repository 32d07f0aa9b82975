package shipping

// These constants mirror domain error codes to avoid circular imports.
const (
	codeInvalid = "invalid"
)

// ShippingError represents a shipping-specific error with a code and message.
type ShippingError struct {
	Code    string
	Message string
}

func (e *ShippingError) Error() string {
	return e.Message
}

// ErrorCode returns the error code for status mapping.
func (e *ShippingError) ErrorCode() string {
	return e.Code
}

func newShippingError(code, message string) *ShippingError {
	return &ShippingError{Code: code, Message: message}
}

var (
	// ErrInvalidFee is returned when the flat fee is negative.
	ErrInvalidFee = newShippingError(codeInvalid, "Shipping fee cannot be negative")

	// ErrInvalidThreshold is returned when the free-shipping threshold is negative.
	ErrInvalidThreshold = newShippingError(codeInvalid, "Free shipping threshold cannot be negative")
)
