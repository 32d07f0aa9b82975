package billing

import (
	"context"
	"fmt"

	"github.com/dukerupert/cartcore/internal/checkout"
	"github.com/google/uuid"
)

// MockSheet is a payment sheet for tests and local development.
// Simulates a successful wallet flow without calling Stripe.
type MockSheet struct {
	// PresentFunc allows customizing sheet behavior
	PresentFunc func(ctx context.Context, req checkout.SheetRequest) (string, error)

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// NewMockSheet creates a new mock payment sheet.
func NewMockSheet() *MockSheet {
	return &MockSheet{CallLog: []string{}}
}

// Present returns a fresh fake payment intent ID unless PresentFunc is set.
func (m *MockSheet) Present(ctx context.Context, req checkout.SheetRequest) (string, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("Present(%s, %s)", req.Breakdown.Total.StringFixed(2), req.Currency))

	if m.PresentFunc != nil {
		return m.PresentFunc(ctx, req)
	}
	return "pi_mock_" + uuid.New().String(), nil
}
