// Package api is the local JSON bridge between a UI shell and the cart core.
// Every route is a thin translation from HTTP to a synchronizer or
// orchestrator call; all state lives in those components.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cartcore/internal/address"
	"github.com/dukerupert/cartcore/internal/cartsync"
	"github.com/dukerupert/cartcore/internal/checkout"
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/handler"
	"github.com/dukerupert/cartcore/internal/pricing"
	"github.com/dukerupert/cartcore/internal/router"
)

// CartService is implemented by *cartsync.Synchronizer.
type CartService interface {
	Mode() cartsync.Mode
	StoreID() string
	CurrentCart(ctx context.Context) (domain.Cart, error)
	AddItem(ctx context.Context, item domain.LineItem) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, key domain.ItemKey, quantity int) (domain.Cart, error)
	RemoveItem(ctx context.Context, key domain.ItemKey) (domain.Cart, error)
	Clear(ctx context.Context) error
	Totals(ctx context.Context) (domain.Cart, pricing.Breakdown, error)
	SwitchStore(ctx context.Context, storeID string, confirmed bool) error
}

// Pricer is implemented by *pricing.Engine.
type Pricer interface {
	ForCart(cart domain.Cart) pricing.Breakdown
}

// Session is implemented by *auth.Session. Signing in or out publishes the
// auth edge the synchronizer reacts to.
type Session interface {
	SignIn(token, userID string) error
	SignOut()
	Authenticated() bool
}

// CheckoutService is implemented by *checkout.Orchestrator.
type CheckoutService interface {
	View() checkout.View
	SetShippingAddress(ctx context.Context, addr address.Address) error
	SetBillingAddress(ctx context.Context, addr *address.Address) error
	SetSaveAddress(save bool) error
	SelectPayment(sel domain.PaymentSelection) error
	Submit(ctx context.Context) (domain.OrderResult, error)
	Retry() error
	Reset() error
}

// WalletProvider receives the payment method produced by the shell's native
// wallet. Implemented by *billing.PendingWallet.
type WalletProvider interface {
	Provide(paymentMethod string)
}

// Handler serves the bridge routes.
type Handler struct {
	cart     CartService
	pricer   Pricer
	session  Session
	checkout CheckoutService
	wallet   WalletProvider
	logger   *slog.Logger
}

// NewHandler creates the bridge handler.
func NewHandler(cart CartService, pricer Pricer, session Session, co CheckoutService, wallet WalletProvider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		cart:     cart,
		pricer:   pricer,
		session:  session,
		checkout: co,
		wallet:   wallet,
		logger:   logger,
	}
}

// Register mounts every bridge route on r.
func (h *Handler) Register(r *router.Router) {
	r.Get("/cart", h.GetCart)
	r.Post("/cart/items", h.AddItem)
	r.Put("/cart/items", h.UpdateItem)
	r.Delete("/cart/items/{productId}", h.RemoveItem)
	r.Delete("/cart", h.ClearCart)
	r.Get("/cart/totals", h.GetTotals)
	r.Post("/cart/store", h.SwitchStore)

	r.Post("/session", h.SignIn)
	r.Delete("/session", h.SignOut)

	r.Get("/checkout", h.GetCheckout)
	r.Put("/checkout/address", h.SetAddress)
	r.Put("/checkout/payment", h.SetPayment)
	r.Post("/checkout/submit", h.Submit)
	r.Post("/checkout/retry", h.Retry)
	r.Delete("/checkout", h.ResetCheckout)

	r.Get("/healthz", h.Health)

	r.Fallback(h.Unmatched)
}

// Unmatched answers requests outside the bridge's route table in JSON.
func (h *Handler) Unmatched(w http.ResponseWriter, r *http.Request, allowed []string) {
	if len(allowed) > 0 {
		handler.MethodNotAllowedResponse(w, r)
		return
	}
	handler.JSONErrorResponse(w, r, domain.Errorf(domain.ENOTFOUND, "", "No bridge route for %s", r.URL.Path))
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	handler.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   h.cart.Mode().String(),
	})
}
