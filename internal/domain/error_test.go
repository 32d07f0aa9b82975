package domain

import (
	"errors"
	"fmt"
	"testing"
)

const genericMessage = "An internal error occurred. Please try again later."

func TestError_Error(t *testing.T) {
	diskFull := errors.New("disk full")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"message only", &Error{Code: EINVALID, Message: "Quantity must be greater than 0"}, "Quantity must be greater than 0"},
		{"with op", &Error{Code: ECONFLICT, Op: "cart.switch_store", Message: "confirm first"}, "cart.switch_store: confirm first"},
		{"with op and cause", &Error{Code: EINTERNAL, Op: "localcart.save", Message: "failed to save", Err: diskFull}, "localcart.save: failed to save: disk full"},
		{"cause without op", &Error{Code: EINTERNAL, Message: "failed to save", Err: diskFull}, "failed to save: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorAccessors(t *testing.T) {
	unreachable := Unreachable(errors.New("dial tcp: connection refused"), "remote.cart.fetch")
	wrapped := fmt.Errorf("sync: %w", unreachable)

	tests := []struct {
		name    string
		err     error
		code    string
		message string
		op      string
	}{
		{"nil", nil, "", "", ""},
		{"plain error is internal", errors.New("boom"), EINTERNAL, genericMessage, ""},
		{"internal hides detail", Internal(errors.New("redis password leaked"), "localcart.load", "load failed"), EINTERNAL, genericMessage, "localcart.load"},
		{"wrapped unreachable", wrapped, EUNAVAILABLE, "Commerce service is unreachable", "remote.cart.fetch"},
		{"sentinel", ErrCartEmpty, EINVALID, "Cart is empty", ""},
		{"validation", NewValidationError("checkout.submit", "payment", "Choose a payment method"), EINVALID, "checkout.submit: payment: Choose a payment method", ""},
		{"errorf", Errorf(EINVALID, "cart.update", "invalid quantity: %d", -1), EINVALID, "invalid quantity: -1", "cart.update"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.code {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.code)
			}
			if got := ErrorMessage(tt.err); got != tt.message {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.message)
			}
			if got := ErrorOp(tt.err); got != tt.op {
				t.Errorf("ErrorOp() = %q, want %q", got, tt.op)
			}
			if tt.code != "" && !IsCode(tt.err, tt.code) {
				t.Errorf("IsCode(%q) = false", tt.code)
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, EPAYMENT, "billing.sheet.present", "declined") != nil {
		t.Fatal("WrapError(nil) should return nil")
	}

	declined := errors.New("stripe: card_declined")
	err := WrapError(declined, EPAYMENT, "billing.sheet.present", "Your card was declined.")

	if !errors.Is(err, declined) {
		t.Error("WrapError should keep the cause reachable")
	}
	if ErrorCode(err) != EPAYMENT {
		t.Errorf("ErrorCode() = %q, want %q", ErrorCode(err), EPAYMENT)
	}
	if ErrorMessage(err) != "Your card was declined." {
		t.Errorf("ErrorMessage() = %q", ErrorMessage(err))
	}
}

func TestValidationFields(t *testing.T) {
	base := &ValidationError{Op: "checkout.submit", Fields: map[string]string{}}
	err := AddFieldError(base, "shipping_address", "Shipping address is required")
	err = AddFieldError(err, "payment", "Choose a payment method")

	if !IsValidationError(err) {
		t.Fatal("IsValidationError() = false")
	}
	fields := GetValidationFields(err)
	if len(fields) != 2 || fields["payment"] != "Choose a payment method" {
		t.Errorf("GetValidationFields() = %v", fields)
	}
	if err.Error() != "checkout.submit: validation failed for 2 fields" {
		t.Errorf("Error() = %q", err.Error())
	}

	fresh := AddFieldError(errors.New("not a validation error"), "card", "Card details are required")
	if got := GetValidationFields(fresh); len(got) != 1 {
		t.Errorf("AddFieldError on a plain error should start a new field map, got %v", got)
	}

	for _, e := range []error{nil, errors.New("x"), ErrCartEmpty} {
		if IsValidationError(e) || GetValidationFields(e) != nil {
			t.Errorf("%v should not be a validation error", e)
		}
	}
}

func TestConvenienceFunctions(t *testing.T) {
	t.Run("Unauthorized", func(t *testing.T) {
		err := Unauthorized("remote.cart.fetch", "session expired")
		if ErrorCode(err) != EUNAUTHORIZED {
			t.Errorf("Unauthorized code = %q, want %q", ErrorCode(err), EUNAUTHORIZED)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		err := Invalid("cart.add", "quantity must be positive")
		if ErrorCode(err) != EINVALID {
			t.Errorf("Invalid code = %q, want %q", ErrorCode(err), EINVALID)
		}
	})

	t.Run("Conflict", func(t *testing.T) {
		err := Conflict("cart.switch_store", "cart belongs to another store")
		if ErrorCode(err) != ECONFLICT {
			t.Errorf("Conflict code = %q, want %q", ErrorCode(err), ECONFLICT)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		underlying := errors.New("dial tcp: connection refused")
		err := Unreachable(underlying, "remote.cart.add")

		if ErrorCode(err) != EUNAVAILABLE {
			t.Errorf("Unreachable code = %q, want %q", ErrorCode(err), EUNAVAILABLE)
		}
		if !errors.Is(err, underlying) {
			t.Error("Unreachable should wrap transport error")
		}
	})

	t.Run("Server", func(t *testing.T) {
		err := Server("remote.orders.create", 422, "card declined")

		if ErrorCode(err) != ESERVER {
			t.Errorf("Server code = %q, want %q", ErrorCode(err), ESERVER)
		}
		status, ok := ServerStatus(err)
		if !ok || status != 422 {
			t.Errorf("ServerStatus() = %d, %v, want 422, true", status, ok)
		}
		if msg := ErrorMessage(err); msg != "card declined" {
			t.Errorf("server message should surface, got %q", msg)
		}
	})

	t.Run("Server without message", func(t *testing.T) {
		err := Server("remote.cart.fetch", 500, "")
		if msg := ErrorMessage(err); msg != "Commerce service error (500)" {
			t.Errorf("ErrorMessage() = %q", msg)
		}
	})

	t.Run("Internal", func(t *testing.T) {
		underlying := errors.New("disk full")
		err := Internal(underlying, "localcart.save", "failed to save")

		if ErrorCode(err) != EINTERNAL {
			t.Errorf("Internal code = %q, want %q", ErrorCode(err), EINTERNAL)
		}

		if !errors.Is(err, underlying) {
			t.Error("Internal should wrap underlying error")
		}

		// Message should be hidden
		msg := ErrorMessage(err)
		if msg != "An internal error occurred. Please try again later." {
			t.Errorf("Internal message should be hidden, got %q", msg)
		}
	})
}

func TestServerStatus_NonServerError(t *testing.T) {
	if _, ok := ServerStatus(errors.New("plain")); ok {
		t.Error("ServerStatus should report false for plain errors")
	}
}

func TestError_IsMatchesSentinelAfterWrap(t *testing.T) {
	wrapped := fmt.Errorf("checkout.submit: %w", ErrSubmitInFlight)
	if !errors.Is(wrapped, ErrSubmitInFlight) {
		t.Error("errors.Is should match wrapped sentinel")
	}

	withOp := &Error{Code: ECONFLICT, Op: "checkout.submit", Message: ErrSubmitInFlight.Message}
	if !errors.Is(withOp, ErrSubmitInFlight) {
		t.Error("errors.Is should match sentinel carrying an op")
	}

	if errors.Is(ErrOrderPlaced, ErrSubmitInFlight) {
		t.Error("distinct sentinels sharing a code must not match")
	}
}

func TestPreDefinedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"ErrInvalidQuantity", ErrInvalidQuantity, EINVALID},
		{"ErrInvalidProduct", ErrInvalidProduct, EINVALID},
		{"ErrStoreRequired", ErrStoreRequired, EINVALID},
		{"ErrStoreMismatch", ErrStoreMismatch, ECONFLICT},
		{"ErrStoreSwitchUnconfirmed", ErrStoreSwitchUnconfirmed, ECONFLICT},
		{"ErrCartEmpty", ErrCartEmpty, EINVALID},
		{"ErrPaymentCanceled", ErrPaymentCanceled, ECANCELED},
		{"ErrSubmitInFlight", ErrSubmitInFlight, ECONFLICT},
		{"ErrRetryRequired", ErrRetryRequired, ECONFLICT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.code {
				t.Errorf("%s code = %q, want %q", tt.name, got, tt.code)
			}
		})
	}
}
