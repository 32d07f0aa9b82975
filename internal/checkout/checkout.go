// Package checkout drives a single checkout from address collection to an
// order-creation call.
//
// States: CollectingAddress -> SelectingPayment -> Submitting -> Succeeded |
// Failed. Failed permits re-entry to SelectingPayment, through Retry or by
// changing the address or payment, but never straight back to Submitting.
// Nothing here retries on its own: a payment-adjacent retry must be an
// explicit customer action.
package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/cartcore/internal/address"
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/pricing"
	"github.com/google/uuid"
)

// CartSource is the synchronized cart. cartsync.Synchronizer implements it.
type CartSource interface {
	CurrentCart(ctx context.Context) (domain.Cart, error)
	Clear(ctx context.Context) error
}

// Pricer prices a cart snapshot.
type Pricer interface {
	ForCart(cart domain.Cart) pricing.Breakdown
}

// OrderCreator calls the order-creation API. remote.OrderClient implements it.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req domain.CheckoutRequest) (domain.OrderResult, error)
}

// SheetRequest is what the payment sheet shows the customer.
type SheetRequest struct {
	StoreID        string
	Currency       string
	Items          []domain.LineItem
	Breakdown      pricing.Breakdown
	IdempotencyKey string
}

// PaymentSheet presents a wallet sheet and returns an opaque payment token.
// A dismissed sheet returns domain.ErrPaymentCanceled.
type PaymentSheet interface {
	Present(ctx context.Context, req SheetRequest) (string, error)
}

// Recorder receives checkout metrics. telemetry.Metrics implements it.
type Recorder interface {
	RecordTransition(from, to string)
	RecordSubmission(outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string)        {}
func (nopRecorder) RecordSubmission(string, time.Duration) {}

// View is a read-only snapshot of the orchestrator.
type View struct {
	State           State               `json:"state"`
	ShippingAddress *address.Address    `json:"shipping_address,omitempty"`
	BillingAddress  *address.Address    `json:"billing_address,omitempty"`
	SaveAddress     bool                `json:"save_address"`
	Payment         string              `json:"payment"`
	CanSubmit       bool                `json:"can_submit"`
	Result          *domain.OrderResult `json:"result,omitempty"`
	Error           string              `json:"error,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
}

// Orchestrator is the checkout state machine. All methods are safe for
// concurrent use.
type Orchestrator struct {
	cart      CartSource
	pricer    Pricer
	orders    OrderCreator
	sheet     PaymentSheet
	addresses address.Validator

	logger   *slog.Logger
	recorder Recorder
	currency string
	newKey   func() string
	eventBuf int

	mu          sync.Mutex
	state       State
	busy        bool
	shipping    *address.Address
	billing     *address.Address
	saveAddress bool
	payment     domain.PaymentSelection
	warnings    []string
	result      *domain.OrderResult
	lastErr     error

	subMu       sync.Mutex
	subscribers []chan Event
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithCurrency sets the currency shown on the payment sheet.
func WithCurrency(currency string) Option {
	return func(o *Orchestrator) {
		o.currency = currency
	}
}

// WithIdempotencyKeys overrides the per-submission key generator.
func WithIdempotencyKeys(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newKey = fn
		}
	}
}

// WithEventBuffer sets the buffer size of subscriber channels.
func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.eventBuf = n
		}
	}
}

// New creates an orchestrator in CollectingAddress.
func New(cart CartSource, pricer Pricer, orders OrderCreator, sheet PaymentSheet, addresses address.Validator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cart:      cart,
		pricer:    pricer,
		orders:    orders,
		sheet:     sheet,
		addresses: addresses,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		recorder:  nopRecorder{},
		currency:  "usd",
		newKey:    uuid.NewString,
		eventBuf:  16,
		state:     CollectingAddress,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// View returns a snapshot for rendering.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{
		State:           o.state,
		ShippingAddress: o.shipping,
		BillingAddress:  o.billing,
		SaveAddress:     o.saveAddress,
		Payment:         o.payment.Kind.String(),
		CanSubmit:       o.canSubmit(),
		Result:          o.result,
		Warnings:        o.warnings,
	}
	if o.lastErr != nil {
		v.Error = domain.ErrorMessage(o.lastErr)
	}
	return v
}

// CanSubmit is true iff a shipping address is present and the payment
// selection is complete.
func (o *Orchestrator) CanSubmit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canSubmit()
}

func (o *Orchestrator) canSubmit() bool {
	return o.shipping != nil && o.payment.Ready()
}

// SetShippingAddress validates and stores the shipping address.
func (o *Orchestrator) SetShippingAddress(ctx context.Context, addr address.Address) error {
	const op = "checkout.shipping_address"

	normalized, warnings, err := o.validateAddress(ctx, op, addr)
	if err != nil {
		return err
	}

	return o.change(op, func() {
		o.shipping = &normalized
		o.warnings = warnings
		if o.state == CollectingAddress {
			o.transition(SelectingPayment, nil)
		}
	})
}

// SetBillingAddress stores a billing address; nil means "same as shipping".
func (o *Orchestrator) SetBillingAddress(ctx context.Context, addr *address.Address) error {
	const op = "checkout.billing_address"

	var billing *address.Address
	if addr != nil {
		normalized, _, err := o.validateAddress(ctx, op, *addr)
		if err != nil {
			return err
		}
		billing = &normalized
	}

	return o.change(op, func() {
		o.billing = billing
	})
}

// SetSaveAddress sets whether the backend should remember the address.
func (o *Orchestrator) SetSaveAddress(save bool) error {
	return o.change("checkout.save_address", func() {
		o.saveAddress = save
	})
}

// SelectPayment stores the payment selection. It may be chosen before the
// address; the state only advances once both are present.
func (o *Orchestrator) SelectPayment(sel domain.PaymentSelection) error {
	const op = "checkout.payment"
	if sel.Kind == domain.PaymentNone {
		return domain.NewValidationError(op, "payment", "Choose a payment method")
	}
	return o.change(op, func() {
		o.payment = sel
	})
}

// change applies fn unless the checkout is Submitting or Succeeded. Changing
// anything after a failure returns the checkout to SelectingPayment.
func (o *Orchestrator) change(op string, fn func()) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.busy || o.state == Submitting:
		return domain.Conflict(op, "Checkout is being submitted")
	case o.state == Succeeded:
		return domain.Conflict(op, "This order has already been placed")
	}

	fn()
	if o.state == Failed {
		o.lastErr = nil
		o.transition(SelectingPayment, nil)
	}
	return nil
}

func (o *Orchestrator) validateAddress(ctx context.Context, op string, addr address.Address) (address.Address, []string, error) {
	if o.addresses == nil {
		return addr, nil, nil
	}

	res, err := o.addresses.Validate(ctx, addr)
	if err != nil {
		return address.Address{}, nil, domain.Internal(err, op, "Address could not be validated")
	}
	if !res.IsValid {
		ve := &domain.ValidationError{Op: op, Fields: make(map[string]string, len(res.Errors))}
		for _, fe := range res.Errors {
			ve.Fields[fe.Field] = fe.Message
		}
		return address.Address{}, nil, ve
	}
	if res.NormalizedAddress != nil {
		addr = *res.NormalizedAddress
	}
	return addr, res.Warnings, nil
}

// Retry moves a failed checkout back to SelectingPayment with the address
// and payment selection kept.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Failed {
		return domain.ErrNothingToRetry
	}
	o.lastErr = nil
	o.transition(SelectingPayment, nil)
	return nil
}

// Reset starts a new checkout after a placed order. It is rejected while a
// submission is in flight.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.busy || o.state == Submitting {
		return domain.ErrSubmitInFlight
	}
	o.shipping = nil
	o.billing = nil
	o.saveAddress = false
	o.payment = domain.PaymentSelection{}
	o.warnings = nil
	o.result = nil
	o.lastErr = nil
	o.transition(CollectingAddress, nil)
	return nil
}

// Submit places the order.
//
// With ApplePay selected the payment sheet is presented first; its token is
// carried in the request. A dismissed sheet leaves the checkout in
// SelectingPayment. Otherwise the request is built directly. Submitting
// issues exactly one order-creation call: success clears the cart and ends
// in Succeeded, failure ends in Failed with the cart intact and the error
// returned verbatim.
func (o *Orchestrator) Submit(ctx context.Context) (domain.OrderResult, error) {
	const op = "checkout.submit"

	req, err := o.begin(op)
	if err != nil {
		return domain.OrderResult{}, err
	}

	cart, err := o.cart.CurrentCart(ctx)
	if err != nil {
		o.abort(SelectingPayment, err)
		return domain.OrderResult{}, err
	}
	if cart.IsEmpty() {
		o.abort(SelectingPayment, nil)
		return domain.OrderResult{}, domain.ErrCartEmpty
	}
	req.StoreID = cart.StoreID

	if req.Payment.Kind == domain.PaymentApplePay {
		token, err := o.sheet.Present(ctx, SheetRequest{
			StoreID:        cart.StoreID,
			Currency:       o.currency,
			Items:          cart.Items,
			Breakdown:      o.pricer.ForCart(cart),
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			if errors.Is(err, domain.ErrPaymentCanceled) {
				o.logger.Info("payment sheet dismissed")
				o.abort(SelectingPayment, err)
			} else {
				o.logger.Warn("payment sheet failed", "error", err)
				o.abort(Failed, err)
			}
			return domain.OrderResult{}, err
		}
		req.PaymentToken = token
	}

	o.mu.Lock()
	o.transition(Submitting, nil)
	o.mu.Unlock()

	started := time.Now()
	res, err := o.orders.CreateOrder(ctx, req)
	if err != nil {
		o.recorder.RecordSubmission("failed", time.Since(started))
		o.logger.Warn("order submission failed",
			"idempotency_key", req.IdempotencyKey,
			"code", domain.ErrorCode(err),
			"error", err,
		)
		o.abort(Failed, err)
		return domain.OrderResult{}, err
	}
	o.recorder.RecordSubmission("succeeded", time.Since(started))

	if err := o.cart.Clear(ctx); err != nil {
		o.logger.Warn("order placed but cart clear failed", "order_id", res.OrderID, "error", err)
	}

	o.mu.Lock()
	o.result = &res
	o.busy = false
	o.transition(Succeeded, nil)
	o.mu.Unlock()

	o.logger.Info("order placed",
		"order_id", res.OrderID,
		"order_number", res.OrderNumber,
		"payment_status", res.PaymentStatus,
		"requires_action", res.RequiresAction(),
	)
	return res, nil
}

// begin checks that a submission may start and builds the request from the
// current selections.
func (o *Orchestrator) begin(op string) (domain.CheckoutRequest, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.busy || o.state == Submitting:
		return domain.CheckoutRequest{}, domain.ErrSubmitInFlight
	case o.state == Succeeded:
		return domain.CheckoutRequest{}, domain.ErrOrderPlaced
	case o.state == Failed:
		return domain.CheckoutRequest{}, domain.ErrRetryRequired
	}

	if !o.canSubmit() {
		var err error = &domain.ValidationError{Op: op, Fields: map[string]string{}}
		if o.shipping == nil {
			err = domain.AddFieldError(err, "shipping_address", "Shipping address is required")
		}
		if !o.payment.Ready() {
			err = domain.AddFieldError(err, "payment", "Choose a payment method")
		}
		return domain.CheckoutRequest{}, err
	}

	o.busy = true
	o.lastErr = nil
	return domain.CheckoutRequest{
		Payment:         o.payment,
		ShippingAddress: *o.shipping,
		BillingAddress:  o.billing,
		SaveAddress:     o.saveAddress,
		IdempotencyKey:  o.newKey(),
	}, nil
}

// abort ends a submission attempt in state, recording err.
func (o *Orchestrator) abort(state State, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.busy = false
	o.lastErr = err
	if state != o.state {
		o.transition(state, err)
	}
}

// transition moves to next and notifies subscribers. Callers must hold mu.
func (o *Orchestrator) transition(next State, err error) {
	prev := o.state
	o.state = next
	o.recorder.RecordTransition(prev.String(), next.String())
	o.logger.Info("checkout state changed", "from", prev.String(), "to", next.String())

	ev := Event{From: prev, To: next, Result: o.result}
	if err != nil {
		ev.Err = domain.ErrorMessage(err)
		ev.Code = domain.ErrorCode(err)
	}
	o.emit(ev)
}
