package address

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usZip = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// BasicValidator performs format validation without external API calls.
// Required fields and formats come from the struct tags on Address; US ZIP
// codes get an extra format check.
type BasicValidator struct {
	validate *validator.Validate
}

// NewBasicValidator creates a new basic address validator.
func NewBasicValidator() *BasicValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &BasicValidator{validate: v}
}

// Validate normalizes whitespace and casing, then checks the address.
func (v *BasicValidator) Validate(ctx context.Context, addr Address) (*ValidationResult, error) {
	normalized := normalize(addr)
	result := &ValidationResult{NormalizedAddress: &normalized}

	if err := v.validate.StructCtx(ctx, normalized); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, fmt.Errorf("validate address: %w", err)
		}
		for _, fe := range verrs {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fe.Field(),
				Message: messageFor(fe),
			})
		}
	}

	if normalized.Country == "US" && normalized.PostalCode != "" && !usZip.MatchString(normalized.PostalCode) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "postal_code",
			Message: "must be a 5-digit ZIP code",
		})
	}

	if normalized.AddressLine2 == "" && strings.Contains(strings.ToLower(normalized.AddressLine1), "apt") {
		result.Warnings = append(result.Warnings, "apartment number may belong on address line 2")
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

func normalize(a Address) Address {
	a.FullName = strings.TrimSpace(a.FullName)
	a.Company = strings.TrimSpace(a.Company)
	a.AddressLine1 = strings.TrimSpace(a.AddressLine1)
	a.AddressLine2 = strings.TrimSpace(a.AddressLine2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.ToUpper(strings.TrimSpace(a.State))
	a.PostalCode = strings.ToUpper(strings.TrimSpace(a.PostalCode))
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.Phone = strings.TrimSpace(a.Phone)
	return a
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "iso3166_1_alpha2":
		return "must be a two-letter country code"
	case "e164":
		return "must be an E.164 phone number"
	default:
		return "is invalid"
	}
}
