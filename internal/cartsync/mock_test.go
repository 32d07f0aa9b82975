package cartsync

import (
	"context"
	"sync"
	"testing"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/localcart"
	"github.com/dukerupert/cartcore/internal/pricing"
	"github.com/dukerupert/cartcore/internal/shipping"
	"github.com/dukerupert/cartcore/internal/tax"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type addCall struct {
	StoreID  string
	Key      domain.ItemKey
	Quantity int
}

// mockRemote is an in-memory server cart. Func fields override the default
// behavior for individual tests.
type mockRemote struct {
	mu      sync.Mutex
	ownerID string
	storeID string
	items   []domain.LineItem
	prices  map[int64]decimal.Decimal

	FetchFunc      func(ctx context.Context) (domain.Cart, error)
	AddItemFunc    func(ctx context.Context, storeID string, key domain.ItemKey, quantity int) (domain.Cart, error)
	UpdateItemFunc func(ctx context.Context, key domain.ItemKey, quantity int) (domain.Cart, error)
	ClearFunc      func(ctx context.Context) error

	calls []string
	adds  []addCall
}

func newMockRemote() *mockRemote {
	return &mockRemote{ownerID: "user-1", prices: map[int64]decimal.Decimal{}}
}

func (m *mockRemote) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockRemote) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRemote) Adds() []addCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]addCall(nil), m.adds...)
}

func (m *mockRemote) snapshot() domain.Cart {
	items := append([]domain.LineItem(nil), m.items...)
	return domain.Cart{ID: "remote-cart", OwnerID: m.ownerID, StoreID: m.storeID, Items: items}
}

func (m *mockRemote) index(key domain.ItemKey) int {
	for i, li := range m.items {
		if li.Key() == key {
			return i
		}
	}
	return -1
}

func (m *mockRemote) Fetch(ctx context.Context) (domain.Cart, error) {
	m.record("fetch")
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(), nil
}

func (m *mockRemote) AddItem(ctx context.Context, storeID string, key domain.ItemKey, quantity int) (domain.Cart, error) {
	m.record("add")
	m.mu.Lock()
	m.adds = append(m.adds, addCall{StoreID: storeID, Key: key, Quantity: quantity})
	m.mu.Unlock()
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, storeID, key, quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeID = storeID
	if i := m.index(key); i >= 0 {
		m.items[i].Quantity += quantity
	} else {
		price, ok := m.prices[key.ProductID]
		if !ok {
			price = decimal.RequireFromString("10.00")
		}
		m.items = append(m.items, domain.LineItem{
			ProductID:   key.ProductID,
			VariationID: key.VariationID,
			Quantity:    quantity,
			UnitPrice:   price,
		})
	}
	return m.snapshot(), nil
}

func (m *mockRemote) UpdateItem(ctx context.Context, key domain.ItemKey, quantity int) (domain.Cart, error) {
	m.record("update")
	if m.UpdateItemFunc != nil {
		return m.UpdateItemFunc(ctx, key, quantity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(key); i >= 0 {
		m.items[i].Quantity = quantity
	}
	return m.snapshot(), nil
}

func (m *mockRemote) RemoveItem(ctx context.Context, key domain.ItemKey) (domain.Cart, error) {
	m.record("remove")
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(key); i >= 0 {
		m.items = append(m.items[:i], m.items[i+1:]...)
	}
	return m.snapshot(), nil
}

func (m *mockRemote) Clear(ctx context.Context) error {
	m.record("clear")
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	return nil
}

type mockRecorder struct {
	mu        sync.Mutex
	mutations []string
	drained   int
	failed    int
	stale     int
}

func (r *mockRecorder) RecordMutation(op, mode string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, mode+":"+op)
}

func (r *mockRecorder) RecordMerge(drained, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drained += drained
	r.failed += failed
}

func (r *mockRecorder) RecordStaleResponse() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale++
}

func (r *mockRecorder) Stale() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stale
}

type mockReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *mockReporter) CaptureError(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

type fixture struct {
	sync     *Synchronizer
	local    *localcart.Store
	remote   *mockRemote
	recorder *mockRecorder
	reporter *mockReporter
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	taxPolicy, err := tax.NewPercentage(decimal.RequireFromString("0.08"))
	require.NoError(t, err)
	shippingPolicy, err := shipping.NewFlatRate(decimal.RequireFromString("5.00"), decimal.RequireFromString("50"))
	require.NoError(t, err)

	f := &fixture{
		local:    localcart.New(localcart.NewMemoryBackend()),
		remote:   newMockRemote(),
		recorder: &mockRecorder{},
		reporter: &mockReporter{},
	}
	opts = append([]Option{WithRecorder(f.recorder), WithReporter(f.reporter)}, opts...)
	f.sync = New(f.local, f.remote, pricing.NewEngine(taxPolicy, shippingPolicy), "store-1", opts...)
	return f
}

func item(productID int64, qty int, price string) domain.LineItem {
	return domain.LineItem{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}
