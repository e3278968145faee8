package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dukaan/internal/common"
	"github.com/noah-isme/backend-dukaan/internal/pricing"
)

// Handler wires the cart service and pricing engine to HTTP.
type Handler struct {
	Svc      *Service
	Engine   *pricing.Engine
	Schedule pricing.Schedule
	Validate *validator.Validate
	Currency string
}

// Routes mounts the cart endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/quote", h.Quote)
	r.Post("/{id}/items", h.AddItem)
	r.Patch("/{id}/items/{productID}", h.SetQty)
	r.Delete("/{id}/items/{productID}", h.RemoveItem)
}

type itemPayload struct {
	ProductID           string  `json:"productId" validate:"required"`
	Name                string  `json:"name"`
	UnitPrice           string  `json:"unitPrice" validate:"required"`
	DiscountedUnitPrice *string `json:"discountedUnitPrice"`
	Qty                 int64   `json:"qty" validate:"required,min=1"`
	GSTPercent          *string `json:"gstPercent"`
	CategoryID          string  `json:"categoryId"`
}

func (p itemPayload) toItem() (Item, error) {
	unit, err := decimal.NewFromString(p.UnitPrice)
	if err != nil {
		return Item{}, errors.New("unitPrice must be a decimal string")
	}
	item := Item{
		ProductID:  p.ProductID,
		Name:       p.Name,
		UnitPrice:  unit,
		Qty:        p.Qty,
		CategoryID: p.CategoryID,
	}
	if p.DiscountedUnitPrice != nil {
		d, err := decimal.NewFromString(*p.DiscountedUnitPrice)
		if err != nil {
			return Item{}, errors.New("discountedUnitPrice must be a decimal string")
		}
		item.DiscountedUnitPrice = &d
	}
	if p.GSTPercent != nil {
		g, err := decimal.NewFromString(*p.GSTPercent)
		if err != nil {
			return Item{}, errors.New("gstPercent must be a decimal string")
		}
		item.GSTPercent = &g
	}
	return item, nil
}

// Create allocates a new empty cart.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	cart, err := h.Svc.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": cartView(cart, h.Currency)})
}

// Get returns the cart snapshot.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cartView(cart, h.Currency)})
}

// AddItem appends or merges a product line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload itemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, err.Error(), nil)
			return
		}
	}
	item, err := payload.toItem()
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, err.Error(), nil)
		return
	}
	cart, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "id"), item)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cartView(cart, h.Currency)})
}

// SetQty updates a line quantity; zero removes the line.
func (h *Handler) SetQty(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Qty int64 `json:"qty" validate:"min=0"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	cart, err := h.Svc.SetQty(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productID"), payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cartView(cart, h.Currency)})
}

// RemoveItem drops a product line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cartView(cart, h.Currency)})
}

// Quote computes order totals for the cart without committing anything.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "pricing engine not configured", nil)
		return
	}
	cart, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	totals, err := h.Engine.Totals(r.Context(), cart.Lines(), h.Schedule)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"cartId":   cart.ID,
			"currency": h.Currency,
			"totals":   TotalsView(totals),
		},
	})
}

// TotalsView renders presented totals as decimal strings for the wire.
func TotalsView(t pricing.Totals) map[string]any {
	p := t.Presented()
	warnings := make([]map[string]string, 0, len(p.Warnings))
	for _, wrn := range p.Warnings {
		warnings = append(warnings, map[string]string{
			"categoryId": wrn.CategoryID,
			"message":    "handling fee unavailable, defaulted to 0",
		})
	}
	return map[string]any{
		"subtotal":    p.Subtotal.String(),
		"discount":    p.Discount.String(),
		"gst":         p.GST.String(),
		"handlingFee": p.HandlingFee.String(),
		"shipping":    p.Shipping.String(),
		"platformFee": p.PlatformFee.String(),
		"grandTotal":  p.GrandTotal.String(),
		"warnings":    warnings,
	}
}

func cartView(c Cart, currency string) map[string]any {
	items := make([]map[string]any, 0, len(c.Items))
	for _, it := range c.Items {
		v := map[string]any{
			"productId":  it.ProductID,
			"name":       it.Name,
			"unitPrice":  it.UnitPrice.String(),
			"qty":        it.Qty,
			"categoryId": it.CategoryID,
		}
		if it.DiscountedUnitPrice != nil {
			v["discountedUnitPrice"] = it.DiscountedUnitPrice.String()
		}
		if it.GSTPercent != nil {
			v["gstPercent"] = it.GSTPercent.String()
		}
		items = append(items, v)
	}
	return map[string]any{
		"id":        c.ID,
		"items":     items,
		"currency":  currency,
		"updatedAt": c.UpdatedAt,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "cart not found", nil)
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, pricing.ErrLineQty),
		errors.Is(err, pricing.ErrLineProduct),
		errors.Is(err, pricing.ErrLinePrice):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, err.Error(), nil)
	default:
		common.JSONAppError(w, err)
	}
}
