package tax

import "github.com/shopspring/decimal"

// None returns zero tax for every subtotal.
// Used for tax-exempt stores or when the backend always supplies tax.
type None struct{}

func (None) Tax(decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

func (None) Rate() decimal.Decimal {
	return decimal.Zero
}
