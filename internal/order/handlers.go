package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-dukaan/internal/common"
)

// Handler exposes read access to persisted orders.
type Handler struct {
	Store Store
}

// Routes mounts the order endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{orderID}", h.Get)
}

// List returns orders newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	orders, total, err := h.Store.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to list orders", nil)
		return
	}
	response := make([]map[string]any, 0, len(orders))
	for _, ord := range orders {
		response = append(response, orderSummary(ord))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": response,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

// Get returns one order including its payment proof.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order store not configured", nil)
		return
	}
	ord, err := h.Store.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load order", nil)
		return
	}
	detail := orderSummary(ord)
	items := make([]map[string]any, 0, len(ord.Items))
	for _, it := range ord.Items {
		items = append(items, map[string]any{
			"productId": it.ProductID,
			"name":      it.Name,
			"unitPrice": it.UnitPrice.String(),
			"qty":       it.Qty,
		})
	}
	detail["items"] = items
	detail["payment"] = map[string]any{
		"transactionId":  ord.Proof.TransactionID,
		"gatewayOrderId": ord.Proof.GatewayOrderID,
		"method":         ord.Proof.Method,
		"backend":        ord.Proof.Backend,
		"amount":         ord.Proof.Amount.String(),
		"capturedAt":     ord.Proof.CapturedAt,
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

func orderSummary(ord Order) map[string]any {
	p := ord.Totals.Presented()
	return map[string]any{
		"id":        ord.ID,
		"status":    string(ord.Status),
		"currency":  ord.Currency,
		"subtotal":  p.Subtotal.String(),
		"discount":  p.Discount.String(),
		"gst":       p.GST.String(),
		"handling":  p.HandlingFee.String(),
		"shipping":  p.Shipping.String(),
		"platform":  p.PlatformFee.String(),
		"total":     p.GrandTotal.String(),
		"createdAt": ord.CreatedAt,
	}
}
