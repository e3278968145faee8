package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-dukaan/internal/cart"
	"github.com/noah-isme/backend-dukaan/internal/common"
	"github.com/noah-isme/backend-dukaan/internal/events"
	"github.com/noah-isme/backend-dukaan/internal/lock"
	"github.com/noah-isme/backend-dukaan/internal/obs"
	"github.com/noah-isme/backend-dukaan/internal/order"
	"github.com/noah-isme/backend-dukaan/internal/payment"
	"github.com/noah-isme/backend-dukaan/internal/pricing"
)

// Input is a checkout request: which cart to settle and how to pay.
type Input struct {
	CartID   string
	Method   payment.Method
	Customer payment.Customer
}

// Output is returned for a successful checkout.
type Output struct {
	OrderID string
	Totals  pricing.Totals
	Payment payment.Result
}

// Service settles a cart: price it, collect payment, and persist the
// order. An order record exists only when payment succeeded; every
// failure path leaves no order behind.
type Service struct {
	Carts        *cart.Service
	Engine       *pricing.Engine
	Schedule     pricing.Schedule
	Orchestrator *payment.Orchestrator
	Orders       order.Store
	Events       *events.Bus
	Locks        *lock.Locker
	Currency     string
	Logger       zerolog.Logger
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create runs the checkout flow to completion. A per-cart lock keeps two
// concurrent checkouts of the same cart from both charging the buyer.
func (s *Service) Create(ctx context.Context, in Input) (Output, error) {
	if s == nil || s.Carts == nil || s.Engine == nil || s.Orchestrator == nil || s.Orders == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	if s.Locks != nil {
		var out Output
		err := s.Locks.WithLock(ctx, lock.CheckoutKey(in.CartID), 30*time.Second, func(ctx context.Context) error {
			var innerErr error
			out, innerErr = s.create(ctx, in)
			return innerErr
		})
		return out, err
	}
	return s.create(ctx, in)
}

func (s *Service) create(ctx context.Context, in Input) (Output, error) {
	ctx, span := otel.Tracer("checkout").Start(ctx, "Checkout.Create")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.cart_id", in.CartID))

	snapshot, err := s.Carts.Get(ctx, in.CartID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return s.fail("not_found", &common.AppError{
				Code: common.CodeNotFound, Message: "cart not found", HTTPStatus: http.StatusNotFound,
			})
		}
		return s.fail("error", fmt.Errorf("load cart: %w", err))
	}
	if len(snapshot.Items) == 0 {
		return s.fail("validation", &common.AppError{
			Code: common.CodeValidation, Message: "cart is empty", HTTPStatus: http.StatusUnprocessableEntity,
		})
	}

	totals, err := s.Engine.Totals(ctx, snapshot.Lines(), s.Schedule)
	if err != nil {
		return s.fail("validation", &common.AppError{
			Code: common.CodeValidation, Message: err.Error(), HTTPStatus: http.StatusUnprocessableEntity, Err: err,
		})
	}
	presented := totals.Presented()

	orderID := uuid.NewString()
	res := s.Orchestrator.Process(ctx, payment.Request{
		Method:      in.Method,
		Amount:      presented.GrandTotal,
		OrderRef:    orderID,
		Description: fmt.Sprintf("order %s (%d items)", orderID, len(snapshot.Items)),
		Customer:    in.Customer,
	})
	if !res.Success {
		return s.paymentFailed(ctx, orderID, res)
	}

	ord := order.Order{
		ID:       orderID,
		CartID:   snapshot.ID,
		Status:   order.StatusPaid,
		Currency: s.Currency,
		Items:    orderItems(snapshot.Items),
		Totals:   presented,
		Proof: order.Proof{
			TransactionID:  res.TransactionID,
			GatewayOrderID: res.GatewayOrderID,
			Signature:      res.Signature,
			Method:         res.Method.String(),
			Backend:        res.Backend,
			Amount:         res.Amount,
			CapturedAt:     res.Timestamp,
		},
		Customer:  in.Customer,
		CreatedAt: s.now(),
	}
	if err := s.Orders.Create(ctx, ord); err != nil {
		// Payment already captured; surface loudly so it can be reconciled.
		s.Logger.Error().Err(err).
			Str("order_id", orderID).
			Str("transaction_id", res.TransactionID).
			Msg("order persist failed after successful payment")
		return s.fail("error", &common.AppError{
			Code:       common.CodeInternal,
			Message:    "payment captured but order could not be recorded",
			HTTPStatus: http.StatusInternalServerError,
			Err:        err,
			Details:    map[string]string{"transactionId": res.TransactionID},
		})
	}

	s.emit(ctx, events.TopicOrderCreated, orderID, map[string]any{
		"orderId":    orderID,
		"cartId":     snapshot.ID,
		"grandTotal": presented.GrandTotal.String(),
		"currency":   s.Currency,
	})
	s.emit(ctx, events.TopicPaymentCaptured, orderID, map[string]any{
		"orderId":       orderID,
		"transactionId": res.TransactionID,
		"method":        res.Method.String(),
		"backend":       res.Backend,
	})

	if err := s.Carts.Clear(ctx, snapshot.ID); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", snapshot.ID).Msg("cart cleanup failed")
	}

	recordCheckout("success")
	return Output{OrderID: orderID, Totals: presented, Payment: res}, nil
}

// paymentFailed maps a terminal payment failure to the API error space.
// No order exists on this path.
func (s *Service) paymentFailed(ctx context.Context, orderID string, res payment.Result) (Output, error) {
	switch res.Kind {
	case payment.KindCancelled:
		s.emit(ctx, events.TopicPaymentCancelled, orderID, map[string]any{
			"orderId": orderID, "method": res.Method.String(),
		})
		return s.fail("cancelled", &common.AppError{
			Code:       common.CodeCancelled,
			Message:    "payment cancelled",
			HTTPStatus: http.StatusConflict,
		})
	case payment.KindValidation:
		return s.fail("validation", &common.AppError{
			Code:       common.CodeValidation,
			Message:    res.Message,
			HTTPStatus: http.StatusUnprocessableEntity,
		})
	case payment.KindUnsupportedMethod:
		return s.fail("validation", &common.AppError{
			Code:       common.CodeUnsupported,
			Message:    res.Message,
			HTTPStatus: http.StatusUnprocessableEntity,
		})
	default:
		s.emit(ctx, events.TopicPaymentFailed, orderID, map[string]any{
			"orderId": orderID, "method": res.Method.String(), "message": res.Message,
		})
		return s.fail("failed", &common.AppError{
			Code:       common.CodeTechnical,
			Message:    "payment failed",
			HTTPStatus: http.StatusPaymentRequired,
			Details:    map[string]string{"reason": res.Message},
		})
	}
}

func (s *Service) fail(label string, err error) (Output, error) {
	recordCheckout(label)
	return Output{}, err
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("event emit degraded")
	}
}

func recordCheckout(result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
}

func orderItems(items []cart.Item) []order.Item {
	out := make([]order.Item, 0, len(items))
	for _, it := range items {
		out = append(out, order.Item{
			ProductID:           it.ProductID,
			Name:                it.Name,
			UnitPrice:           it.UnitPrice,
			DiscountedUnitPrice: it.DiscountedUnitPrice,
			Qty:                 it.Qty,
			GSTPercent:          it.GSTPercent,
			CategoryID:          it.CategoryID,
		})
	}
	return out
}
