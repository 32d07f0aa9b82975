package remote

import (
	"context"
	"errors"
	"net/http"

	"github.com/dukerupert/cartcore/internal/address"
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/go-playground/validator/v10"
)

// IdempotencyKeyHeader carries the per-submission key so the backend can
// collapse duplicate deliveries of the same order.
const IdempotencyKeyHeader = "Idempotency-Key"

type paymentDTO struct {
	Type        string `json:"type" validate:"required,oneof=apple_pay saved_method new_card"`
	MethodID    string `json:"method_id,omitempty" validate:"required_if=Type saved_method"`
	CardToken   string `json:"card_token,omitempty" validate:"required_if=Type new_card"`
	WalletToken string `json:"wallet_token,omitempty" validate:"required_if=Type apple_pay"`
}

type orderRequestDTO struct {
	StoreID         string           `json:"store_id" validate:"required"`
	Payment         paymentDTO       `json:"payment"`
	ShippingAddress address.Address  `json:"shipping_address"`
	BillingAddress  *address.Address `json:"billing_address,omitempty"`
	SaveAddress     bool             `json:"save_address"`
}

type orderResponseDTO struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	PaymentStatus string `json:"payment_status"`
	ActionURL     string `json:"action_url,omitempty"`
}

// OrderClient calls the order-creation API.
type OrderClient struct {
	c        *Client
	path     string
	validate *validator.Validate
}

// NewOrderClient creates an order client posting to path (e.g. "/api/orders").
func NewOrderClient(c *Client, path string) *OrderClient {
	return &OrderClient{
		c:        c,
		path:     path,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateOrder submits req exactly once. The request is rejected locally,
// before any network call, if it is structurally incomplete.
func (oc *OrderClient) CreateOrder(ctx context.Context, req domain.CheckoutRequest) (domain.OrderResult, error) {
	const op = "remote.order.create"

	in := orderRequestDTO{
		StoreID:         req.StoreID,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		SaveAddress:     req.SaveAddress,
		Payment:         paymentDTO{Type: req.Payment.Kind.String()},
	}
	switch req.Payment.Kind {
	case domain.PaymentApplePay:
		in.Payment.WalletToken = req.PaymentToken
	case domain.PaymentSavedMethod:
		in.Payment.MethodID = req.Payment.MethodID
	case domain.PaymentNewCard:
		if req.Payment.Card != nil {
			in.Payment.CardToken = req.Payment.Card.Token
		}
	}

	if err := oc.validate.StructCtx(ctx, in); err != nil {
		return domain.OrderResult{}, toValidationError(op, err)
	}

	var headers http.Header
	if req.IdempotencyKey != "" {
		headers = http.Header{IdempotencyKeyHeader: []string{req.IdempotencyKey}}
	}

	var out orderResponseDTO
	if err := oc.c.Do(ctx, op, http.MethodPost, oc.path, nil, in, &out, headers); err != nil {
		return domain.OrderResult{}, err
	}

	return domain.OrderResult{
		OrderID:       out.OrderID,
		OrderNumber:   out.OrderNumber,
		PaymentStatus: out.PaymentStatus,
		ActionURL:     out.ActionURL,
	}, nil
}

func toValidationError(op string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.Invalid(op, err.Error())
	}
	ve := &domain.ValidationError{Op: op, Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		ve.Fields[fe.Namespace()] = fe.Tag()
	}
	return ve
}
