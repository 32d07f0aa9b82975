// Package pricing derives the monetary breakdown of a cart.
//
// The engine is deterministic: the same line items (and server-supplied tax
// and discount) always produce an identical Breakdown. It performs no I/O; a
// negative total is clamped to zero and the excess is reported rather than
// silently dropped.
package pricing

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/shipping"
	"github.com/dukerupert/cartcore/internal/tax"
	"github.com/shopspring/decimal"
)

// Breakdown is the derived monetary view of a cart. It is never persisted.
type Breakdown struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`

	// Excess is the amount by which the discount exceeded the pre-discount
	// total. Zero unless the total was clamped.
	Excess decimal.Decimal `json:"excess"`

	// ServerTax is true when Tax came from the backend rather than the local policy.
	ServerTax bool `json:"server_tax"`
}

// Clamped reports whether the discount drove the total below zero.
func (b Breakdown) Clamped() bool {
	return b.Excess.IsPositive()
}

// ClampError describes a discount larger than the cart it was applied to.
type ClampError struct {
	Discount decimal.Decimal
	Excess   decimal.Decimal
}

func (e *ClampError) Error() string {
	return fmt.Sprintf("discount %s exceeds cart total by %s", e.Discount.StringFixed(2), e.Excess.StringFixed(2))
}

// ErrorReporter receives clamp errors. telemetry.SentryReporter satisfies it.
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
}

// Engine composes a tax policy and a shipping policy.
type Engine struct {
	tax      tax.Policy
	shipping shipping.Policy
	logger   *slog.Logger
	reporter ErrorReporter
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for clamp warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithReporter sets the error reporter notified when a total is clamped.
func WithReporter(r ErrorReporter) Option {
	return func(e *Engine) {
		e.reporter = r
	}
}

// NewEngine creates a pricing engine.
func NewEngine(taxPolicy tax.Policy, shippingPolicy shipping.Policy, opts ...Option) *Engine {
	e := &Engine{
		tax:      taxPolicy,
		shipping: shippingPolicy,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subtotal returns the sum of unit price times quantity over items.
func Subtotal(items []domain.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, li := range items {
		sum = sum.Add(li.LineTotal())
	}
	return sum
}

// Compute prices a bare list of line items with no server tax or discount.
func (e *Engine) Compute(items []domain.LineItem) Breakdown {
	return e.compute(items, decimal.NullDecimal{}, decimal.Zero)
}

// ForCart prices a cart snapshot. Backend-supplied tax takes precedence over
// the local policy, and the discount is taken from the snapshot only.
func (e *Engine) ForCart(cart domain.Cart) Breakdown {
	return e.compute(cart.Items, cart.Tax, cart.Discount)
}

func (e *Engine) compute(items []domain.LineItem, serverTax decimal.NullDecimal, discount decimal.Decimal) Breakdown {
	b := Breakdown{
		Subtotal: Subtotal(items),
		Discount: discount,
		Excess:   decimal.Zero,
	}

	if serverTax.Valid {
		b.Tax = serverTax.Decimal
		b.ServerTax = true
	} else {
		b.Tax = e.tax.Tax(b.Subtotal)
	}
	b.ShippingFee = e.shipping.Fee(b.Subtotal)

	gross := b.Subtotal.Add(b.Tax).Add(b.ShippingFee)
	total := gross.Sub(discount)
	if total.IsNegative() {
		b.Excess = total.Neg()
		total = decimal.Zero
		e.reportClamp(b)
	}
	b.Total = total

	return b
}

func (e *Engine) reportClamp(b Breakdown) {
	err := &ClampError{Discount: b.Discount, Excess: b.Excess}
	e.logger.Warn("pricing total clamped to zero",
		"discount", b.Discount.StringFixed(2),
		"excess", b.Excess.StringFixed(2),
		"subtotal", b.Subtotal.StringFixed(2),
	)
	if e.reporter != nil {
		e.reporter.CaptureError(err, map[string]string{"component": "pricing"})
	}
}
