package shipping

import (
	"github.com/shopspring/decimal"
)

// FlatRate charges a fixed fee unless the subtotal is strictly greater than
// FreeOver. A subtotal exactly at the threshold still pays the fee.
type FlatRate struct {
	fee      decimal.Decimal
	freeOver decimal.Decimal
}

// NewFlatRate creates a flat-rate policy.
func NewFlatRate(fee, freeOver decimal.Decimal) (*FlatRate, error) {
	if fee.IsNegative() {
		return nil, ErrInvalidFee
	}
	if freeOver.IsNegative() {
		return nil, ErrInvalidThreshold
	}
	return &FlatRate{fee: fee, freeOver: freeOver}, nil
}

// Fee returns zero when subtotal > threshold, otherwise the flat fee.
func (p *FlatRate) Fee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.freeOver) {
		return decimal.Zero
	}
	return p.fee
}

// Quote returns the fee and the amount still needed to qualify for free
// shipping. Qualifying requires exceeding the threshold, so the remainder is
// reported in whole cents above it.
func (p *FlatRate) Quote(subtotal decimal.Decimal) Quote {
	fee := p.Fee(subtotal)
	q := Quote{Fee: fee, Free: fee.IsZero(), RemainingFree: decimal.Zero}
	if !q.Free {
		q.RemainingFree = p.freeOver.Sub(subtotal).Add(decimal.New(1, -Cents))
	}
	return q
}

// Cents is the precision of the free-shipping remainder.
const Cents int32 = 2
