package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/cartcore/internal/address"
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_CanSubmit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.False(t, f.o.CanSubmit())
	assert.Equal(t, CollectingAddress, f.o.State())

	require.NoError(t, f.o.SelectPayment(domain.ApplePay()))
	assert.False(t, f.o.CanSubmit(), "apple pay alone is not enough without an address")
	assert.Equal(t, CollectingAddress, f.o.State())

	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	assert.True(t, f.o.CanSubmit())
	assert.Equal(t, SelectingPayment, f.o.State())
}

func TestOrchestrator_CanSubmitPaymentVariants(t *testing.T) {
	tests := []struct {
		name string
		sel  domain.PaymentSelection
		want bool
	}{
		{name: "apple pay", sel: domain.ApplePay(), want: true},
		{name: "saved method", sel: domain.SavedMethod("pm_1"), want: true},
		{name: "saved method without id", sel: domain.SavedMethod(""), want: false},
		{name: "tokenized card", sel: domain.NewCard(domain.CardDetails{Token: "tok_visa"}), want: true},
		{name: "card not yet tokenized", sel: domain.NewCard(domain.CardDetails{Last4: "4242"}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			require.NoError(t, f.o.SetShippingAddress(context.Background(), validAddress()))
			require.NoError(t, f.o.SelectPayment(tt.sel))

			assert.Equal(t, tt.want, f.o.CanSubmit())
		})
	}
}

func TestOrchestrator_SubmitRejectedWhenIncomplete(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.o.Submit(context.Background())

	require.True(t, domain.IsValidationError(err))
	fields := domain.GetValidationFields(err)
	assert.Contains(t, fields, "shipping_address")
	assert.Contains(t, fields, "payment")
	assert.Equal(t, 0, f.orders.Count())
	assert.Empty(t, f.sheet.Requests)
	assert.Equal(t, CollectingAddress, f.o.State())
}

func TestOrchestrator_SelectPaymentRequiresVariant(t *testing.T) {
	f := newFixture(t, nil)
	assert.True(t, domain.IsValidationError(f.o.SelectPayment(domain.PaymentSelection{})))
}

func TestOrchestrator_SubmitDirect(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	billing := validAddress()
	billing.FullName = "Charles Babbage"

	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SetBillingAddress(ctx, &billing))
	require.NoError(t, f.o.SetSaveAddress(true))
	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_saved")))

	res, err := f.o.Submit(ctx)

	require.NoError(t, err)
	assert.Equal(t, "order-1", res.OrderID)
	assert.Equal(t, Succeeded, f.o.State())
	assert.Empty(t, f.sheet.Requests, "direct submission skips the sheet")

	require.Equal(t, 1, f.orders.Count())
	req := f.orders.Requests[0]
	assert.Equal(t, "store-1", req.StoreID)
	assert.Equal(t, domain.PaymentSavedMethod, req.Payment.Kind)
	assert.Equal(t, "pm_saved", req.Payment.MethodID)
	assert.Equal(t, "Ada Lovelace", req.ShippingAddress.FullName)
	require.NotNil(t, req.BillingAddress)
	assert.Equal(t, "Charles Babbage", req.BillingAddress.FullName)
	assert.True(t, req.SaveAddress)
	assert.Equal(t, "key-1", req.IdempotencyKey)
	assert.Empty(t, req.PaymentToken)

	assert.Equal(t, 1, f.cart.clears, "cart is cleared after success")
	assert.Equal(t, []string{
		"collecting_address>selecting_payment",
		"selecting_payment>submitting",
		"submitting>succeeded",
	}, transitions(f.events))

	view := f.o.View()
	require.NotNil(t, view.Result)
	assert.Equal(t, "1001", view.Result.OrderNumber)
}

func TestOrchestrator_SubmitApplePay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.ApplePay()))

	_, err := f.o.Submit(ctx)

	require.NoError(t, err)
	require.Len(t, f.sheet.Requests, 1)
	sheetReq := f.sheet.Requests[0]
	assert.Equal(t, "usd", sheetReq.Currency)
	assert.Len(t, sheetReq.Items, 1)
	assert.Equal(t, "59.00", sheetReq.Breakdown.Total.StringFixed(2))

	require.Equal(t, 1, f.orders.Count())
	assert.Equal(t, "wallet-token", f.orders.Requests[0].PaymentToken)
	assert.Equal(t, Succeeded, f.o.State())
}

func TestOrchestrator_ApplePaySheetCanceled(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.ApplePay()))
	f.sheet.PresentFunc = func(context.Context, SheetRequest) (string, error) {
		return "", domain.ErrPaymentCanceled
	}

	_, err := f.o.Submit(ctx)

	assert.ErrorIs(t, err, domain.ErrPaymentCanceled)
	assert.Equal(t, SelectingPayment, f.o.State())
	assert.Equal(t, 0, f.orders.Count())
	assert.Equal(t, 0, f.cart.clears)

	// The customer can try again straight away.
	f.sheet.PresentFunc = nil
	_, err = f.o.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, Succeeded, f.o.State())
}

func TestOrchestrator_ApplePaySheetFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.ApplePay()))
	f.sheet.PresentFunc = func(context.Context, SheetRequest) (string, error) {
		return "", errors.New("wallet unavailable")
	}

	_, err := f.o.Submit(ctx)

	assert.EqualError(t, err, "wallet unavailable")
	assert.Equal(t, Failed, f.o.State())
	assert.Equal(t, 0, f.orders.Count())
}

func TestOrchestrator_OrderFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_1")))

	declined := domain.Server("remote.order.create", 402, "Your card was declined.")
	f.orders.CreateOrderFunc = func(context.Context, domain.CheckoutRequest) (domain.OrderResult, error) {
		return domain.OrderResult{}, declined
	}

	_, err := f.o.Submit(ctx)

	assert.Same(t, declined, err, "failure is surfaced verbatim")
	assert.Equal(t, Failed, f.o.State())
	assert.Equal(t, 0, f.cart.clears, "cart is kept for a retry")
	assert.Equal(t, 1, f.orders.Count(), "exactly one order call, no automatic retry")
	assert.Equal(t, "Your card was declined.", f.o.View().Error)

	// Submitting again from Failed is rejected.
	_, err = f.o.Submit(ctx)
	assert.ErrorIs(t, err, domain.ErrRetryRequired)
	assert.Equal(t, 1, f.orders.Count())

	// Retry keeps the address and payment selection.
	require.NoError(t, f.o.Retry())
	assert.Equal(t, SelectingPayment, f.o.State())
	assert.True(t, f.o.CanSubmit())
	assert.Empty(t, f.o.View().Error)

	f.orders.CreateOrderFunc = nil
	_, err = f.o.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.orders.Count())
	assert.NotEqual(t, f.orders.Requests[0].IdempotencyKey, f.orders.Requests[1].IdempotencyKey)
}

func TestOrchestrator_ChangeAfterFailureReturnsToSelectingPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_1")))
	f.orders.CreateOrderFunc = func(context.Context, domain.CheckoutRequest) (domain.OrderResult, error) {
		return domain.OrderResult{}, domain.Unreachable(errors.New("timeout"), "remote.order.create")
	}
	_, err := f.o.Submit(ctx)
	require.Error(t, err)
	require.Equal(t, Failed, f.o.State())

	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_2")))

	assert.Equal(t, SelectingPayment, f.o.State())
}

func TestOrchestrator_RejectsChangesWhenSucceeded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_1")))
	_, err := f.o.Submit(ctx)
	require.NoError(t, err)

	assert.True(t, domain.IsCode(f.o.SetShippingAddress(ctx, validAddress()), domain.ECONFLICT))
	assert.True(t, domain.IsCode(f.o.SelectPayment(domain.ApplePay()), domain.ECONFLICT))
	assert.True(t, domain.IsCode(f.o.SetSaveAddress(true), domain.ECONFLICT))

	_, err = f.o.Submit(ctx)
	assert.ErrorIs(t, err, domain.ErrOrderPlaced)
	assert.ErrorIs(t, f.o.Retry(), domain.ErrNothingToRetry)

	require.NoError(t, f.o.Reset())
	assert.Equal(t, CollectingAddress, f.o.State())
	assert.False(t, f.o.CanSubmit())
}

func TestOrchestrator_RejectsChangesWhileSubmitting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_1")))

	entered := make(chan struct{})
	release := make(chan struct{})
	f.orders.CreateOrderFunc = func(context.Context, domain.CheckoutRequest) (domain.OrderResult, error) {
		close(entered)
		<-release
		return domain.OrderResult{OrderID: "order-9"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.o.Submit(ctx)
		done <- err
	}()
	<-entered

	assert.Equal(t, Submitting, f.o.State())
	assert.True(t, domain.IsCode(f.o.SelectPayment(domain.ApplePay()), domain.ECONFLICT))
	assert.True(t, domain.IsCode(f.o.SetShippingAddress(ctx, validAddress()), domain.ECONFLICT))
	_, err := f.o.Submit(ctx)
	assert.ErrorIs(t, err, domain.ErrSubmitInFlight)
	assert.ErrorIs(t, f.o.Reset(), domain.ErrSubmitInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, Succeeded, f.o.State())
	assert.Equal(t, 1, f.orders.Count())
}

func TestOrchestrator_RequiresActionStillSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.NewCard(domain.CardDetails{Token: "tok_3ds"})))
	f.orders.CreateOrderFunc = func(context.Context, domain.CheckoutRequest) (domain.OrderResult, error) {
		return domain.OrderResult{
			OrderID:       "order-2",
			PaymentStatus: domain.PaymentStatusRequiresAction,
			ActionURL:     "https://bank.example/3ds",
		}, nil
	}

	res, err := f.o.Submit(ctx)

	require.NoError(t, err)
	assert.True(t, res.RequiresAction())
	assert.Equal(t, Succeeded, f.o.State())
	assert.Equal(t, "https://bank.example/3ds", f.o.View().Result.ActionURL)
}

func TestOrchestrator_EmptyCartRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.cart.cart.Items = nil
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_1")))

	_, err := f.o.Submit(ctx)

	assert.ErrorIs(t, err, domain.ErrCartEmpty)
	assert.Equal(t, SelectingPayment, f.o.State())
	assert.Equal(t, 0, f.orders.Count())
}

func TestOrchestrator_CartFetchFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.cart.fetchErr = domain.Unreachable(errors.New("offline"), "remote.cart.fetch")
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_1")))

	_, err := f.o.Submit(ctx)

	assert.True(t, domain.IsCode(err, domain.EUNAVAILABLE))
	assert.Equal(t, SelectingPayment, f.o.State())
	assert.Equal(t, 0, f.orders.Count())
}

func TestOrchestrator_CartClearFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.cart.clearErr = errors.New("clear failed")
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_1")))

	_, err := f.o.Submit(ctx)

	require.NoError(t, err)
	assert.Equal(t, Succeeded, f.o.State())
}

func TestOrchestrator_AddressValidation(t *testing.T) {
	f := newFixture(t, address.NewBasicValidator())
	ctx := context.Background()

	bad := validAddress()
	bad.City = ""
	bad.PostalCode = "ABC"
	err := f.o.SetShippingAddress(ctx, bad)

	require.True(t, domain.IsValidationError(err))
	fields := domain.GetValidationFields(err)
	assert.Contains(t, fields, "city")
	assert.Contains(t, fields, "postal_code")
	assert.Equal(t, CollectingAddress, f.o.State())

	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	view := f.o.View()
	require.NotNil(t, view.ShippingAddress)
	assert.Equal(t, "US", view.ShippingAddress.Country, "normalized address is stored")
	assert.Equal(t, "OR", view.ShippingAddress.State)
}

func TestOrchestrator_BillingAddressCanBeCleared(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	billing := validAddress()

	require.NoError(t, f.o.SetBillingAddress(ctx, &billing))
	require.NotNil(t, f.o.View().BillingAddress)

	require.NoError(t, f.o.SetBillingAddress(ctx, nil))
	assert.Nil(t, f.o.View().BillingAddress)
}

func TestOrchestrator_ValidatorError(t *testing.T) {
	mock := address.NewMockValidator()
	mock.ValidateFunc = func(context.Context, address.Address) (*address.ValidationResult, error) {
		return nil, errors.New("validator offline")
	}
	f := newFixture(t, mock)

	err := f.o.SetShippingAddress(context.Background(), validAddress())

	assert.True(t, domain.IsCode(err, domain.EINTERNAL))
	assert.Len(t, mock.Calls, 1)
}

func TestOrchestrator_ResetAfterSuccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.o.SetShippingAddress(ctx, validAddress()))
	require.NoError(t, f.o.SelectPayment(domain.SavedMethod("pm_1")))
	_, err := f.o.Submit(ctx)
	require.NoError(t, err)
	require.Equal(t, Succeeded, f.o.State())

	require.NoError(t, f.o.Reset())

	v := f.o.View()
	assert.Equal(t, CollectingAddress, v.State)
	assert.Nil(t, v.ShippingAddress)
	assert.Nil(t, v.Result)
	assert.Equal(t, "none", v.Payment)
	assert.False(t, v.CanSubmit)
}
