package api

import (
	"net/http"
	"strconv"

	"github.com/dukerupert/cartcore/internal/cartsync"
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/handler"
	"github.com/dukerupert/cartcore/internal/pricing"
	"github.com/shopspring/decimal"
)

// cartResponse is the body of every cart route.
type cartResponse struct {
	Mode      cartsync.Mode     `json:"mode"`
	Cart      domain.Cart       `json:"cart"`
	Breakdown pricing.Breakdown `json:"breakdown"`
	ItemCount int               `json:"item_count"`
}

type addItemRequest struct {
	ProductID      int64           `json:"product_id"`
	VariationID    *int64          `json:"variation_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Name           string          `json:"name"`
	ImageURL       string          `json:"image_url"`
	VariationLabel string          `json:"variation_label"`
}

type updateItemRequest struct {
	ProductID   int64  `json:"product_id"`
	VariationID *int64 `json:"variation_id"`
	Quantity    int    `json:"quantity"`
}

type switchStoreRequest struct {
	StoreID   string `json:"store_id"`
	Confirmed bool   `json:"confirmed"`
}

func (h *Handler) writeCart(w http.ResponseWriter, cart domain.Cart) {
	handler.JSON(w, http.StatusOK, cartResponse{
		Mode:      h.cart.Mode(),
		Cart:      cart,
		Breakdown: h.pricer.ForCart(cart),
		ItemCount: cart.ItemCount(),
	})
}

// GetCart handles GET /cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cart.CurrentCart(r.Context())
	if err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	h.writeCart(w, cart)
}

// AddItem handles POST /cart/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}

	key := domain.Key(req.ProductID, req.VariationID)
	cart, err := h.cart.AddItem(r.Context(), domain.LineItem{
		ProductID:      key.ProductID,
		VariationID:    key.VariationID,
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		Name:           req.Name,
		ImageURL:       req.ImageURL,
		VariationLabel: req.VariationLabel,
	})
	if err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	h.writeCart(w, cart)
}

// UpdateItem handles PUT /cart/items. A quantity of zero removes the item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}

	cart, err := h.cart.UpdateQuantity(r.Context(), domain.Key(req.ProductID, req.VariationID), req.Quantity)
	if err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	h.writeCart(w, cart)
}

// RemoveItem handles DELETE /cart/items/{productId}?variation_id=
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.PathValue("productId"), 10, 64)
	if err != nil || productID <= 0 {
		handler.JSONErrorResponse(w, r, domain.ErrInvalidProduct)
		return
	}

	var variation *int64
	if raw := r.URL.Query().Get("variation_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			handler.JSONErrorResponse(w, r, domain.Invalid("api.cart.remove", "variation_id must be an integer"))
			return
		}
		variation = &v
	}

	cart, err := h.cart.RemoveItem(r.Context(), domain.Key(productID, variation))
	if err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	h.writeCart(w, cart)
}

// ClearCart handles DELETE /cart
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Clear(r.Context()); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTotals handles GET /cart/totals
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	cart, breakdown, err := h.cart.Totals(r.Context())
	if err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	handler.JSON(w, http.StatusOK, cartResponse{
		Mode:      h.cart.Mode(),
		Cart:      cart,
		Breakdown: breakdown,
		ItemCount: cart.ItemCount(),
	})
}

// SwitchStore handles POST /cart/store. Without "confirmed" a non-empty
// cart answers 409 so the shell can ask the customer first.
func (h *Handler) SwitchStore(w http.ResponseWriter, r *http.Request) {
	var req switchStoreRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}

	if err := h.cart.SwitchStore(r.Context(), req.StoreID, req.Confirmed); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	handler.JSON(w, http.StatusOK, map[string]string{"store_id": h.cart.StoreID()})
}
