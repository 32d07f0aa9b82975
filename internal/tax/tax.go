package tax

import (
	"github.com/shopspring/decimal"
)

// Policy computes the tax owed on a cart subtotal.
// Implementations: Percentage, None. Policies are pure: the same subtotal
// always yields the same amount.
type Policy interface {
	// Tax returns the tax on subtotal, rounded to cents.
	Tax(subtotal decimal.Decimal) decimal.Decimal

	// Rate returns the effective rate, used for display.
	Rate() decimal.Decimal
}

// Cents is the precision every policy rounds to.
const Cents int32 = 2
