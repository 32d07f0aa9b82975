package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CART DOMAIN ERRORS
// =============================================================================

var (
	ErrInvalidQuantity        = &Error{Code: EINVALID, Message: "Quantity must be greater than 0"}
	ErrInvalidProduct         = &Error{Code: EINVALID, Message: "Product ID is required"}
	ErrStoreRequired          = &Error{Code: EINVALID, Message: "Store ID is required"}
	ErrStoreMismatch          = &Error{Code: ECONFLICT, Message: "Cart belongs to a different store"}
	ErrStoreSwitchUnconfirmed = &Error{Code: ECONFLICT, Message: "Switching store empties the cart and must be confirmed"}
	ErrCartEmpty              = &Error{Code: EINVALID, Message: "Cart is empty"}
)

// ItemKey identifies a line item within a cart. A null VariationID means the
// base product. ItemKey is comparable and used directly as a map key.
type ItemKey struct {
	ProductID   int64
	VariationID pgtype.Int8
}

// Key builds an ItemKey. A nil variation selects the base product.
func Key(productID int64, variationID *int64) ItemKey {
	k := ItemKey{ProductID: productID}
	if variationID != nil {
		k.VariationID = pgtype.Int8{Int64: *variationID, Valid: true}
	}
	return k
}

// Variation returns the variation id, or nil for the base product.
func (k ItemKey) Variation() *int64 {
	if !k.VariationID.Valid {
		return nil
	}
	v := k.VariationID.Int64
	return &v
}

func (k ItemKey) String() string {
	if k.VariationID.Valid {
		return fmt.Sprintf("%d/%d", k.ProductID, k.VariationID.Int64)
	}
	return fmt.Sprintf("%d", k.ProductID)
}

// LineItem is one product (and optional variation) with its quantity and the
// unit price captured when it was added to the cart.
type LineItem struct {
	ProductID      int64           `json:"product_id"`
	VariationID    pgtype.Int8     `json:"variation_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Name           string          `json:"name,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	VariationLabel string          `json:"variation_label,omitempty"`
}

// Key returns the identity of the line item within a cart.
func (li LineItem) Key() ItemKey {
	return ItemKey{ProductID: li.ProductID, VariationID: li.VariationID}
}

// LineTotal returns unit price times quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Validate checks the fields every cart mutation relies on.
func (li LineItem) Validate() error {
	if li.ProductID <= 0 {
		return ErrInvalidProduct
	}
	if li.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if li.UnitPrice.IsNegative() {
		return Invalid("", "Unit price cannot be negative")
	}
	return nil
}

// Cart is a snapshot of either the local (anonymous) or the remote cart.
// Items are kept in insertion order and are unique by Key.
type Cart struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id,omitempty"` // empty for the local cart
	StoreID   string     `json:"store_id"`
	Items     []LineItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Tax is the backend's authoritative tax, when the snapshot carries one.
	Tax decimal.NullDecimal `json:"tax"`
	// Discount is a server-applied discount; zero when none has been applied.
	Discount decimal.Decimal `json:"discount"`
}

// IsLocal reports whether the cart is the device-local anonymous cart.
func (c Cart) IsLocal() bool {
	return c.OwnerID == ""
}

// IsEmpty reports whether the cart holds no line items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Item looks up a line item by key.
func (c Cart) Item(key ItemKey) (LineItem, bool) {
	for _, li := range c.Items {
		if li.Key() == key {
			return li, true
		}
	}
	return LineItem{}, false
}

// ItemCount returns the total quantity across all line items (badge count).
func (c Cart) ItemCount() int {
	n := 0
	for _, li := range c.Items {
		n += li.Quantity
	}
	return n
}

// MergeFailure reports one line item that could not be drained into the
// remote cart during login. The drain continues past it.
type MergeFailure struct {
	Item LineItem
	Err  error
}

func (f *MergeFailure) Error() string {
	return fmt.Sprintf("merge item %s (qty %d): %v", f.Item.Key(), f.Item.Quantity, f.Err)
}

func (f *MergeFailure) Unwrap() error {
	return f.Err
}

// MarshalJSON reports the lost item by identity and quantity with the cause
// as text, so event consumers can tell the customer what was not merged.
func (f *MergeFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = ErrorMessage(f.Err)
	}
	return json.Marshal(struct {
		ProductID   int64  `json:"product_id"`
		VariationID *int64 `json:"variation_id,omitempty"`
		Quantity    int    `json:"quantity"`
		Code        string `json:"code"`
		Error       string `json:"error"`
	}{
		ProductID:   f.Item.ProductID,
		VariationID: f.Item.Key().Variation(),
		Quantity:    f.Item.Quantity,
		Code:        ErrorCode(f.Err),
		Error:       msg,
	})
}
