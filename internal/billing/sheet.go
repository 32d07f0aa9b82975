// Package billing turns a wallet authorization into the opaque payment token
// carried by an ApplePay order request.
package billing

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukerupert/cartcore/internal/checkout"
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// minimumChargeCents is Stripe's minimum charge for USD.
const minimumChargeCents = 50

// WalletAuthorizer shows the device wallet and returns the Stripe payment
// method it produced. A dismissed wallet returns domain.ErrPaymentCanceled.
type WalletAuthorizer interface {
	Authorize(ctx context.Context, req checkout.SheetRequest) (string, error)
}

// StripeSheet authorizes the wallet payment method against a manual-capture
// PaymentIntent and returns the intent ID as the payment token. The order
// backend captures it when the order is created.
type StripeSheet struct {
	intents *paymentintent.Client
	wallet  WalletAuthorizer
	logger  *slog.Logger
}

// NewStripeSheet creates a sheet backed by the Stripe API.
func NewStripeSheet(cfg StripeConfig, wallet WalletAuthorizer, logger *slog.Logger) (*StripeSheet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	return &StripeSheet{
		intents: &paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.APIKey,
		},
		wallet: wallet,
		logger: logger,
	}, nil
}

// Present runs the wallet and confirms the resulting payment method for the
// breakdown total.
func (s *StripeSheet) Present(ctx context.Context, req checkout.SheetRequest) (string, error) {
	amount := req.Breakdown.Total.Shift(2).Round(0).IntPart()
	if amount < minimumChargeCents {
		return "", ErrAmountTooSmall
	}

	paymentMethod, err := s.wallet.Authorize(ctx, req)
	if err != nil {
		return "", err
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(req.Currency),
		PaymentMethod:      stripe.String(paymentMethod),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey("sheet-" + req.IdempotencyKey)
	}
	params.AddMetadata("store_id", req.StoreID)

	pi, err := s.intents.New(params)
	if err != nil {
		err = wrapStripeError(err)
		s.logger.Warn("payment intent confirmation failed", "error", err)
		return "", asPaymentError(err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing:
		s.logger.Info("wallet payment authorized", "payment_intent", pi.ID, "amount_cents", amount)
		return pi.ID, nil
	default:
		s.logger.Warn("wallet payment not authorized", "payment_intent", pi.ID, "status", pi.Status)
		return "", asPaymentError(&StripeError{
			Message:       "Your payment was not authorized",
			Code:          string(pi.Status),
			OriginalError: ErrPaymentFailed,
		})
	}
}

// PendingWallet hands over a payment method produced by the UI shell's
// native wallet. The shell calls Provide before submitting; Authorize
// consumes it. With nothing provided the sheet counts as dismissed.
type PendingWallet struct {
	mu            sync.Mutex
	paymentMethod string
}

// NewPendingWallet creates an empty wallet hand-off.
func NewPendingWallet() *PendingWallet {
	return &PendingWallet{}
}

// Provide stores the wallet payment method for the next authorization.
func (w *PendingWallet) Provide(paymentMethod string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paymentMethod = paymentMethod
}

func (w *PendingWallet) Authorize(ctx context.Context, req checkout.SheetRequest) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pm := w.paymentMethod
	w.paymentMethod = ""
	if pm == "" {
		return "", domain.ErrPaymentCanceled
	}
	return pm, nil
}
