package domain

import (
	"github.com/dukerupert/cartcore/internal/address"
)

var (
	// ErrPaymentCanceled is returned by a payment sheet the customer dismissed.
	ErrPaymentCanceled = &Error{Code: ECANCELED, Message: "Payment was canceled"}
	ErrSubmitInFlight  = &Error{Code: ECONFLICT, Message: "An order submission is already in progress"}
	ErrOrderPlaced     = &Error{Code: ECONFLICT, Message: "This order has already been placed"}
	ErrRetryRequired   = &Error{Code: ECONFLICT, Message: "Retry the failed checkout before submitting again"}
	ErrNothingToRetry  = &Error{Code: ECONFLICT, Message: "Only a failed checkout can be retried"}
)

// PaymentKind tags the active variant of a PaymentSelection.
type PaymentKind int

const (
	PaymentNone PaymentKind = iota
	PaymentApplePay
	PaymentSavedMethod
	PaymentNewCard
)

func (k PaymentKind) String() string {
	switch k {
	case PaymentApplePay:
		return "apple_pay"
	case PaymentSavedMethod:
		return "saved_method"
	case PaymentNewCard:
		return "new_card"
	default:
		return "none"
	}
}

// ParsePaymentKind is the inverse of PaymentKind.String.
func ParsePaymentKind(s string) PaymentKind {
	switch s {
	case "apple_pay":
		return PaymentApplePay
	case "saved_method":
		return PaymentSavedMethod
	case "new_card":
		return PaymentNewCard
	default:
		return PaymentNone
	}
}

// CardDetails describes a card entered during checkout. Token is set once the
// card has been tokenized by the payment SDK; raw card numbers never reach the core.
type CardDetails struct {
	Token    string `json:"token"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

// PaymentSelection is a tagged choice: ApplePay, a saved method, or a new card.
// Only the field matching Kind is meaningful.
type PaymentSelection struct {
	Kind     PaymentKind
	MethodID string
	Card     *CardDetails
}

// ApplePay selects the wallet sheet flow.
func ApplePay() PaymentSelection {
	return PaymentSelection{Kind: PaymentApplePay}
}

// SavedMethod selects a payment method stored on the customer account.
func SavedMethod(methodID string) PaymentSelection {
	return PaymentSelection{Kind: PaymentSavedMethod, MethodID: methodID}
}

// NewCard selects a card entered during this checkout.
func NewCard(card CardDetails) PaymentSelection {
	return PaymentSelection{Kind: PaymentNewCard, Card: &card}
}

// Ready reports whether the selection is complete enough to submit.
func (p PaymentSelection) Ready() bool {
	switch p.Kind {
	case PaymentApplePay:
		return true
	case PaymentSavedMethod:
		return p.MethodID != ""
	case PaymentNewCard:
		return p.Card != nil && p.Card.Token != ""
	default:
		return false
	}
}

// CheckoutRequest is the payload sent to the order-creation API.
type CheckoutRequest struct {
	StoreID         string
	Payment         PaymentSelection
	PaymentToken    string // opaque wallet token for the ApplePay branch
	ShippingAddress address.Address
	BillingAddress  *address.Address
	SaveAddress     bool
	IdempotencyKey  string
}

// Payment statuses reported by the order-creation API.
const (
	PaymentStatusSucceeded      = "succeeded"
	PaymentStatusProcessing     = "processing"
	PaymentStatusRequiresAction = "requires_action"
)

// OrderResult is the outcome of a successful order-creation call.
type OrderResult struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	PaymentStatus string `json:"payment_status"`
	// ActionURL is set when the payment requires an extra step (3-D Secure).
	ActionURL string `json:"action_url,omitempty"`
}

// RequiresAction reports whether the payment needs further customer action.
func (r OrderResult) RequiresAction() bool {
	return r.PaymentStatus == PaymentStatusRequiresAction
}
