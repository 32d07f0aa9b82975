package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// itemDTO is the backend's line item representation.
type itemDTO struct {
	ProductID      int64           `json:"product_id"`
	VariationID    *int64          `json:"variation_id,omitempty"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Name           string          `json:"name,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	VariationLabel string          `json:"variation_label,omitempty"`
}

// cartDTO is the backend's cart representation. Tax is null until the
// backend has computed it; Discount is absent when none applies.
type cartDTO struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	StoreID   string              `json:"store_id"`
	Items     []itemDTO           `json:"items"`
	Tax       decimal.NullDecimal `json:"tax"`
	Discount  decimal.Decimal     `json:"discount"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func (d cartDTO) toDomain() domain.Cart {
	items := make([]domain.LineItem, 0, len(d.Items))
	for _, it := range d.Items {
		li := domain.LineItem{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			Name:           it.Name,
			ImageURL:       it.ImageURL,
			VariationLabel: it.VariationLabel,
		}
		if it.VariationID != nil {
			li.VariationID = pgtype.Int8{Int64: *it.VariationID, Valid: true}
		}
		items = append(items, li)
	}
	return domain.Cart{
		ID:        d.ID,
		OwnerID:   d.UserID,
		StoreID:   d.StoreID,
		Items:     items,
		Tax:       d.Tax,
		Discount:  d.Discount,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type addItemRequest struct {
	StoreID     string `json:"store_id,omitempty"`
	ProductID   int64  `json:"product_id"`
	VariationID *int64 `json:"variation_id,omitempty"`
	Quantity    int    `json:"quantity"`
}

type updateItemRequest struct {
	ProductID   int64  `json:"product_id"`
	VariationID *int64 `json:"variation_id,omitempty"`
	Quantity    int    `json:"quantity"`
}

// CartClient is the Remote Cart Client. The server applies the same
// increment-existing-key rule as the local cart.
type CartClient struct {
	c    *Client
	path string
}

// NewCartClient creates a cart client rooted at path (e.g. "/api/cart").
func NewCartClient(c *Client, path string) *CartClient {
	return &CartClient{c: c, path: path}
}

// Fetch returns the session's cart.
func (cc *CartClient) Fetch(ctx context.Context) (domain.Cart, error) {
	var out cartDTO
	if err := cc.c.Do(ctx, "remote.cart.fetch", http.MethodGet, cc.path, nil, nil, &out, nil); err != nil {
		return domain.Cart{}, err
	}
	return out.toDomain(), nil
}

// AddItem adds quantity of the keyed product, tagging the cart with storeID.
func (cc *CartClient) AddItem(ctx context.Context, storeID string, key domain.ItemKey, quantity int) (domain.Cart, error) {
	in := addItemRequest{
		StoreID:     storeID,
		ProductID:   key.ProductID,
		VariationID: key.Variation(),
		Quantity:    quantity,
	}
	var out cartDTO
	if err := cc.c.Do(ctx, "remote.cart.add", http.MethodPost, cc.path, nil, in, &out, nil); err != nil {
		return domain.Cart{}, err
	}
	return out.toDomain(), nil
}

// UpdateItem replaces the quantity of the keyed line.
func (cc *CartClient) UpdateItem(ctx context.Context, key domain.ItemKey, quantity int) (domain.Cart, error) {
	in := updateItemRequest{
		ProductID:   key.ProductID,
		VariationID: key.Variation(),
		Quantity:    quantity,
	}
	var out cartDTO
	if err := cc.c.Do(ctx, "remote.cart.update", http.MethodPut, cc.path, nil, in, &out, nil); err != nil {
		return domain.Cart{}, err
	}
	return out.toDomain(), nil
}

// RemoveItem deletes the keyed line.
func (cc *CartClient) RemoveItem(ctx context.Context, key domain.ItemKey) (domain.Cart, error) {
	var query url.Values
	if v := key.Variation(); v != nil {
		query = url.Values{"variation_id": []string{strconv.FormatInt(*v, 10)}}
	}
	path := cc.path + "/items/" + strconv.FormatInt(key.ProductID, 10)

	var out cartDTO
	if err := cc.c.Do(ctx, "remote.cart.remove", http.MethodDelete, path, query, nil, &out, nil); err != nil {
		return domain.Cart{}, err
	}
	return out.toDomain(), nil
}

// Clear empties the session's cart.
func (cc *CartClient) Clear(ctx context.Context) error {
	return cc.c.Do(ctx, "remote.cart.clear", http.MethodDelete, cc.path, nil, nil, nil, nil)
}
