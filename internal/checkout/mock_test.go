package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/dukerupert/cartcore/internal/address"
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/pricing"
	"github.com/dukerupert/cartcore/internal/shipping"
	"github.com/dukerupert/cartcore/internal/tax"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type mockCart struct {
	mu       sync.Mutex
	cart     domain.Cart
	fetchErr error
	clearErr error
	clears   int
}

func (m *mockCart) CurrentCart(ctx context.Context) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return domain.Cart{}, m.fetchErr
	}
	return m.cart, nil
}

func (m *mockCart) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cart.Items = nil
	return nil
}

type mockOrders struct {
	mu              sync.Mutex
	CreateOrderFunc func(ctx context.Context, req domain.CheckoutRequest) (domain.OrderResult, error)
	Requests        []domain.CheckoutRequest
}

func (m *mockOrders) CreateOrder(ctx context.Context, req domain.CheckoutRequest) (domain.OrderResult, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	fn := m.CreateOrderFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return domain.OrderResult{OrderID: "order-1", OrderNumber: "1001", PaymentStatus: domain.PaymentStatusSucceeded}, nil
}

func (m *mockOrders) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

type mockSheet struct {
	PresentFunc func(ctx context.Context, req SheetRequest) (string, error)
	Requests    []SheetRequest
}

func (m *mockSheet) Present(ctx context.Context, req SheetRequest) (string, error) {
	m.Requests = append(m.Requests, req)
	if m.PresentFunc != nil {
		return m.PresentFunc(ctx, req)
	}
	return "wallet-token", nil
}

type fixture struct {
	o      *Orchestrator
	cart   *mockCart
	orders *mockOrders
	sheet  *mockSheet
	events <-chan Event
}

func newFixture(t *testing.T, validator address.Validator) *fixture {
	t.Helper()

	taxPolicy, err := tax.NewPercentage(decimal.RequireFromString("0.08"))
	require.NoError(t, err)
	shippingPolicy, err := shipping.NewFlatRate(decimal.RequireFromString("5.00"), decimal.RequireFromString("50"))
	require.NoError(t, err)

	f := &fixture{
		cart: &mockCart{cart: domain.Cart{
			OwnerID: "user-1",
			StoreID: "store-1",
			Items: []domain.LineItem{{
				ProductID: 10,
				Quantity:  2,
				UnitPrice: decimal.RequireFromString("25.00"),
			}},
		}},
		orders: &mockOrders{},
		sheet:  &mockSheet{},
	}
	if validator == nil {
		validator = address.NewMockValidator()
	}
	keys := 0
	f.o = New(f.cart, pricing.NewEngine(taxPolicy, shippingPolicy), f.orders, f.sheet, validator,
		WithIdempotencyKeys(func() string {
			keys++
			return "key-" + string(rune('0'+keys))
		}),
		WithEventBuffer(64),
	)
	f.events = f.o.Subscribe()
	return f
}

func validAddress() address.Address {
	return address.Address{
		FullName:     "Ada Lovelace",
		AddressLine1: "12 Analytical Way",
		City:         "Portland",
		State:        "or",
		PostalCode:   "97201",
		Country:      "us",
	}
}

func transitions(ch <-chan Event) []string {
	var out []string
	for {
		select {
		case ev := <-ch:
			out = append(out, ev.From.String()+">"+ev.To.String())
		default:
			return out
		}
	}
}
