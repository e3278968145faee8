package checkout

import (
	"encoding/json"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-dukaan/internal/cart"
	"github.com/noah-isme/backend-dukaan/internal/common"
	"github.com/noah-isme/backend-dukaan/internal/payment"
)

// Handler wires the checkout service to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type methodPayload struct {
	Kind  string `json:"kind" validate:"required"`
	AppID string `json:"appId"`
	VPA   string `json:"vpa"`
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

type checkoutPayload struct {
	CartID   string          `json:"cartId" validate:"required"`
	Method   methodPayload   `json:"method" validate:"required"`
	Customer customerPayload `json:"customer"`
}

// Checkout settles a cart and returns the order with payment proof.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var payload checkoutPayload
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
	method, err := payment.ParseMethod(payload.Method.Kind, payload.Method.AppID, payload.Method.VPA)
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeUnsupported, err.Error(), nil)
		return
	}

	out, err := h.Svc.Create(r.Context(), Input{
		CartID: payload.CartID,
		Method: method,
		Customer: payment.Customer{
			Name:  payload.Customer.Name,
			Email: payload.Customer.Email,
			Phone: payload.Customer.Phone,
		},
	})
	if err != nil {
		common.JSONAppError(w, err)
		return
	}

	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"orderId": out.OrderID,
			"status":  "PAID",
			"totals":  cart.TotalsView(out.Totals),
			"payment": map[string]any{
				"transactionId":  out.Payment.TransactionID,
				"gatewayOrderId": out.Payment.GatewayOrderID,
				"method":         out.Payment.Method.String(),
				"backend":        out.Payment.Backend,
				"capturedAt":     out.Payment.Timestamp,
			},
		},
	})
}
