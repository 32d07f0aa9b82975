// Package shipping computes the shipping fee charged on a cart.
package shipping

import "github.com/shopspring/decimal"

// Policy returns the shipping fee for a cart subtotal.
type Policy interface {
	Fee(subtotal decimal.Decimal) decimal.Decimal
}

// Quote describes a shipping fee together with how far the subtotal is from
// free shipping. Used by the bridge for "spend X more" messaging.
type Quote struct {
	Fee           decimal.Decimal `json:"fee"`
	Free          bool            `json:"free"`
	RemainingFree decimal.Decimal `json:"remaining_for_free"`
}
