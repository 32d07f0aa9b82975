package billing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/stripe/stripe-go/v82"
)

var (
	// ErrInvalidAPIKey is returned when Stripe API key is invalid or missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

	// ErrPaymentFailed is returned when the wallet payment was not authorized.
	ErrPaymentFailed = errors.New("billing: payment failed")

	// ErrAmountTooSmall is returned when payment amount is below Stripe's minimum.
	ErrAmountTooSmall = errors.New("billing: amount too small (minimum $0.50 USD)")
)

// StripeError wraps a Stripe API error with additional context.
type StripeError struct {
	Message        string // Human-readable error message
	Code           string // Stripe error code (e.g., "card_declined")
	DeclineCode    string // Card decline reason (if applicable)
	HTTPStatusCode int    // HTTP status code from Stripe
	RequestID      string // Stripe request ID for debugging
	OriginalError  error  // Original error from Stripe SDK
}

func (e *StripeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe: %s (code: %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("stripe: %s", e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.OriginalError
}

// IsDeclined returns true if error is due to card decline.
func (e *StripeError) IsDeclined() bool {
	return e.Code == string(stripe.ErrorCodeCardDeclined) || e.DeclineCode != ""
}

// wrapStripeError converts SDK errors into StripeError. Other errors pass
// through unchanged.
func wrapStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	return &StripeError{
		Message:        se.Msg,
		Code:           string(se.Code),
		DeclineCode:    string(se.DeclineCode),
		HTTPStatusCode: se.HTTPStatusCode,
		RequestID:      se.RequestID,
		OriginalError:  err,
	}
}

// asPaymentError tags declines and unauthorized intents with
// domain.EPAYMENT, keeping the Stripe message for the customer. Other errors
// pass through unchanged.
func asPaymentError(err error) error {
	var se *StripeError
	if !errors.As(err, &se) {
		return err
	}
	if !se.IsDeclined() && se.HTTPStatusCode != http.StatusPaymentRequired && !errors.Is(se, ErrPaymentFailed) {
		return err
	}
	message := se.Message
	if message == "" {
		message = "Your payment was declined"
	}
	return domain.WrapError(err, domain.EPAYMENT, "billing.sheet.present", message)
}
