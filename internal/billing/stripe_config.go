package billing

import (
	"errors"
	"strings"
)

// StripeConfig contains configuration for the Stripe payment sheet.
type StripeConfig struct {
	// APIKey is the Stripe secret key (sk_test_... or sk_live_...)
	APIKey string

	// APIURL overrides the Stripe API base URL (stripe-mock, tests).
	// Empty means the public API.
	APIURL string

	// Currency is the ISO currency code charged (lowercase, e.g. "usd").
	Currency string

	// TimeoutSeconds is the HTTP timeout for Stripe API calls in seconds
	// Default: 30
	TimeoutSeconds int
}

// Validate checks that required configuration is present.
func (c *StripeConfig) Validate() error {
	if c.APIKey == "" {
		return ErrInvalidAPIKey
	}
	if c.Currency == "" {
		return errors.New("stripe: currency is required")
	}
	return nil
}

// IsTestMode returns true if using test mode API keys.
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.APIKey, "sk_test_")
}
