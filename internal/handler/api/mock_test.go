package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/cartcore/internal/address"
	"github.com/dukerupert/cartcore/internal/cartsync"
	"github.com/dukerupert/cartcore/internal/checkout"
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/pricing"
	"github.com/dukerupert/cartcore/internal/router"
	"github.com/dukerupert/cartcore/internal/shipping"
	"github.com/dukerupert/cartcore/internal/tax"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// mockCartService implements CartService for testing
type mockCartService struct {
	mode    cartsync.Mode
	storeID string

	currentCartFunc    func(ctx context.Context) (domain.Cart, error)
	addItemFunc        func(ctx context.Context, item domain.LineItem) (domain.Cart, error)
	updateQuantityFunc func(ctx context.Context, key domain.ItemKey, quantity int) (domain.Cart, error)
	removeItemFunc     func(ctx context.Context, key domain.ItemKey) (domain.Cart, error)
	clearFunc          func(ctx context.Context) error
	totalsFunc         func(ctx context.Context) (domain.Cart, pricing.Breakdown, error)
	switchStoreFunc    func(ctx context.Context, storeID string, confirmed bool) error
}

func (m *mockCartService) Mode() cartsync.Mode { return m.mode }
func (m *mockCartService) StoreID() string     { return m.storeID }

func (m *mockCartService) CurrentCart(ctx context.Context) (domain.Cart, error) {
	if m.currentCartFunc != nil {
		return m.currentCartFunc(ctx)
	}
	return domain.Cart{}, nil
}

func (m *mockCartService) AddItem(ctx context.Context, item domain.LineItem) (domain.Cart, error) {
	if m.addItemFunc != nil {
		return m.addItemFunc(ctx, item)
	}
	return domain.Cart{Items: []domain.LineItem{item}}, nil
}

func (m *mockCartService) UpdateQuantity(ctx context.Context, key domain.ItemKey, quantity int) (domain.Cart, error) {
	if m.updateQuantityFunc != nil {
		return m.updateQuantityFunc(ctx, key, quantity)
	}
	return domain.Cart{}, nil
}

func (m *mockCartService) RemoveItem(ctx context.Context, key domain.ItemKey) (domain.Cart, error) {
	if m.removeItemFunc != nil {
		return m.removeItemFunc(ctx, key)
	}
	return domain.Cart{}, nil
}

func (m *mockCartService) Clear(ctx context.Context) error {
	if m.clearFunc != nil {
		return m.clearFunc(ctx)
	}
	return nil
}

func (m *mockCartService) Totals(ctx context.Context) (domain.Cart, pricing.Breakdown, error) {
	if m.totalsFunc != nil {
		return m.totalsFunc(ctx)
	}
	return domain.Cart{}, pricing.Breakdown{}, nil
}

func (m *mockCartService) SwitchStore(ctx context.Context, storeID string, confirmed bool) error {
	if m.switchStoreFunc != nil {
		return m.switchStoreFunc(ctx, storeID, confirmed)
	}
	m.storeID = storeID
	return nil
}

// mockSession implements Session for testing
type mockSession struct {
	signInFunc func(token, userID string) error
	signedIn   bool
	calls      []string
}

func (m *mockSession) SignIn(token, userID string) error {
	m.calls = append(m.calls, "SignIn("+token+", "+userID+")")
	if m.signInFunc != nil {
		return m.signInFunc(token, userID)
	}
	m.signedIn = true
	return nil
}

func (m *mockSession) SignOut() {
	m.calls = append(m.calls, "SignOut()")
	m.signedIn = false
}

func (m *mockSession) Authenticated() bool { return m.signedIn }

// mockCheckout implements CheckoutService for testing
type mockCheckout struct {
	view checkout.View

	setShippingFunc   func(ctx context.Context, addr address.Address) error
	setBillingFunc    func(ctx context.Context, addr *address.Address) error
	selectPaymentFunc func(sel domain.PaymentSelection) error
	submitFunc        func(ctx context.Context) (domain.OrderResult, error)
	retryFunc         func() error

	selected []domain.PaymentSelection
	saved    []bool
}

func (m *mockCheckout) View() checkout.View { return m.view }

func (m *mockCheckout) SetShippingAddress(ctx context.Context, addr address.Address) error {
	if m.setShippingFunc != nil {
		return m.setShippingFunc(ctx, addr)
	}
	m.view.ShippingAddress = &addr
	return nil
}

func (m *mockCheckout) SetBillingAddress(ctx context.Context, addr *address.Address) error {
	if m.setBillingFunc != nil {
		return m.setBillingFunc(ctx, addr)
	}
	m.view.BillingAddress = addr
	return nil
}

func (m *mockCheckout) SetSaveAddress(save bool) error {
	m.saved = append(m.saved, save)
	m.view.SaveAddress = save
	return nil
}

func (m *mockCheckout) SelectPayment(sel domain.PaymentSelection) error {
	m.selected = append(m.selected, sel)
	if m.selectPaymentFunc != nil {
		return m.selectPaymentFunc(sel)
	}
	m.view.Payment = sel.Kind.String()
	return nil
}

func (m *mockCheckout) Submit(ctx context.Context) (domain.OrderResult, error) {
	if m.submitFunc != nil {
		return m.submitFunc(ctx)
	}
	return domain.OrderResult{}, nil
}

func (m *mockCheckout) Retry() error {
	if m.retryFunc != nil {
		return m.retryFunc()
	}
	return nil
}

func (m *mockCheckout) Reset() error {
	m.view = checkout.View{State: checkout.CollectingAddress}
	return nil
}

// mockWallet implements WalletProvider for testing
type mockWallet struct {
	provided []string
}

func (m *mockWallet) Provide(paymentMethod string) {
	m.provided = append(m.provided, paymentMethod)
}

type testBridge struct {
	cart     *mockCartService
	session  *mockSession
	checkout *mockCheckout
	wallet   *mockWallet
	router   *router.Router
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()

	rate, err := tax.NewPercentage(decimal.RequireFromString("0.08"))
	require.NoError(t, err)
	flat, err := shipping.NewFlatRate(decimal.RequireFromString("5.00"), decimal.RequireFromString("50.00"))
	require.NoError(t, err)

	b := &testBridge{
		cart:     &mockCartService{storeID: "store-1"},
		session:  &mockSession{},
		checkout: &mockCheckout{view: checkout.View{State: checkout.CollectingAddress}},
		wallet:   &mockWallet{},
		router:   router.New(),
	}
	h := NewHandler(b.cart, pricing.NewEngine(rate, flat), b.session, b.checkout, b.wallet, nil)
	h.Register(b.router)
	return b
}

func (b *testBridge) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	return rec
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
