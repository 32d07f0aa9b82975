package tax

import (
	"github.com/shopspring/decimal"
)

// Percentage taxes the subtotal at a fixed rate (e.g. 0.08 for 8%).
type Percentage struct {
	rate decimal.Decimal
}

// NewPercentage creates a percentage policy. Rates outside [0, 1] are rejected.
func NewPercentage(rate decimal.Decimal) (*Percentage, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrInvalidTaxRate
	}
	return &Percentage{rate: rate}, nil
}

// Tax returns subtotal * rate rounded half away from zero to cents.
func (p *Percentage) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.rate).Round(Cents)
}

func (p *Percentage) Rate() decimal.Decimal {
	return p.rate
}
