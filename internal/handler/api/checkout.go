package api

import (
	"net/http"

	"github.com/dukerupert/cartcore/internal/address"
	"github.com/dukerupert/cartcore/internal/checkout"
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/handler"
)

type addressRequest struct {
	ShippingAddress *address.Address `json:"shipping_address"`
	BillingAddress  *address.Address `json:"billing_address"`
	SaveAddress     *bool            `json:"save_address"`
}

type paymentRequest struct {
	Type     string              `json:"type"`
	MethodID string              `json:"method_id"`
	Card     *domain.CardDetails `json:"card"`

	// WalletPaymentMethod is the payment method the shell's native wallet
	// produced. Only read for apple_pay.
	WalletPaymentMethod string `json:"wallet_payment_method"`
}

type submitResponse struct {
	Result domain.OrderResult `json:"result"`
	View   checkout.View      `json:"checkout"`
}

// GetCheckout handles GET /checkout
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	handler.JSON(w, http.StatusOK, h.checkout.View())
}

// SetAddress handles PUT /checkout/address. Omitted fields are left as they are.
func (h *Handler) SetAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}

	ctx := r.Context()
	if req.ShippingAddress != nil {
		if err := h.checkout.SetShippingAddress(ctx, *req.ShippingAddress); err != nil {
			handler.JSONErrorResponse(w, r, err)
			return
		}
	}
	if req.BillingAddress != nil {
		if err := h.checkout.SetBillingAddress(ctx, req.BillingAddress); err != nil {
			handler.JSONErrorResponse(w, r, err)
			return
		}
	}
	if req.SaveAddress != nil {
		if err := h.checkout.SetSaveAddress(*req.SaveAddress); err != nil {
			handler.JSONErrorResponse(w, r, err)
			return
		}
	}
	handler.JSON(w, http.StatusOK, h.checkout.View())
}

// SetPayment handles PUT /checkout/payment
func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}

	var sel domain.PaymentSelection
	switch domain.ParsePaymentKind(req.Type) {
	case domain.PaymentApplePay:
		sel = domain.ApplePay()
		if req.WalletPaymentMethod != "" && h.wallet != nil {
			h.wallet.Provide(req.WalletPaymentMethod)
		}
	case domain.PaymentSavedMethod:
		sel = domain.SavedMethod(req.MethodID)
	case domain.PaymentNewCard:
		if req.Card == nil {
			handler.JSONErrorResponse(w, r, domain.NewValidationError("api.checkout.payment", "card", "Card details are required"))
			return
		}
		sel = domain.NewCard(*req.Card)
	default:
		handler.JSONErrorResponse(w, r, domain.NewValidationError("api.checkout.payment", "type", "Unknown payment type"))
		return
	}

	if err := h.checkout.SelectPayment(sel); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	handler.JSON(w, http.StatusOK, h.checkout.View())
}

// Submit handles POST /checkout/submit. It blocks while the payment sheet
// is up and the order request is in flight.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	result, err := h.checkout.Submit(r.Context())
	if err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	handler.JSON(w, http.StatusOK, submitResponse{Result: result, View: h.checkout.View()})
}

// Retry handles POST /checkout/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.checkout.Retry(); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	handler.JSON(w, http.StatusOK, h.checkout.View())
}

// ResetCheckout handles DELETE /checkout and starts a new checkout.
func (h *Handler) ResetCheckout(w http.ResponseWriter, r *http.Request) {
	if err := h.checkout.Reset(); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	handler.JSON(w, http.StatusOK, h.checkout.View())
}
