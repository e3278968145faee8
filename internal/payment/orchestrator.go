package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-dukaan/internal/money"
	"github.com/noah-isme/backend-dukaan/internal/obs"
)

// Config bounds and shapes the orchestrated payment flow.
type Config struct {
	Currency       string
	MinAmount      decimal.Decimal
	MaxAmount      decimal.Decimal
	AttemptTimeout time.Duration
	// MockFallback allows one hop to the mock backend after a technical
	// failure. Refused by config validation in production.
	MockFallback bool
	// NativeEnabled reports whether the native gateway SDK is usable in
	// this deployment; when false, native requests route to the web flow.
	NativeEnabled bool
}

// Orchestrator runs the payment state machine: validate, select a
// backend, attempt once, and resolve the outcome. At most one fallback
// hop (to the mock backend) is ever taken, and never after cancellation.
type Orchestrator struct {
	Cfg    Config
	Native Backend
	Web    Backend
	UPI    Backend
	Mock   Backend
	Logger zerolog.Logger
}

// Request is a single payment ask from checkout.
type Request struct {
	Method      Method
	Amount      decimal.Decimal
	OrderRef    string
	Description string
	Customer    Customer
}

// Process drives one payment request to a terminal Result. It never
// returns an error; every outcome, including validation rejection and
// backend failure, is expressed in the Result.
func (o *Orchestrator) Process(ctx context.Context, req Request) Result {
	ctx, span := otel.Tracer("payment").Start(ctx, "PaymentOrchestrator.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.method", req.Method.String()),
		attribute.String("payment.order_ref", req.OrderRef),
	)

	res := o.process(ctx, req)

	span.SetAttributes(attribute.Bool("payment.success", res.Success))
	if obs.PaymentAttemptTotal != nil {
		obs.PaymentAttemptTotal.WithLabelValues(req.Method.String(), res.Backend, resultLabel(res)).Inc()
	}
	return res
}

func (o *Orchestrator) process(ctx context.Context, req Request) Result {
	if res, ok := o.validate(req); !ok {
		o.Logger.Warn().
			Str("order_ref", req.OrderRef).
			Str("method", req.Method.String()).
			Str("reason", res.Message).
			Msg("payment request rejected")
		return res
	}

	backend, hop := o.route(req.Method)
	if backend == nil {
		return failure(req.Method, KindUnsupportedMethod,
			fmt.Sprintf("no backend for method %s", req.Method))
	}
	if hop != "" && obs.PaymentFallbackTotal != nil {
		obs.PaymentFallbackTotal.WithLabelValues(hop, "capability").Inc()
	}

	attempt := Attempt{
		Method:           req.Method,
		AmountMinorUnits: money.ToMinorUnits(req.Amount),
		Currency:         o.Cfg.Currency,
		OrderRef:         req.OrderRef,
		Description:      req.Description,
		Customer:         req.Customer,
	}

	res := o.attempt(ctx, backend, attempt, req.Amount)
	if res.Success || res.Kind == KindCancelled {
		return res
	}

	if o.Cfg.MockFallback && backend != o.Mock && o.Mock != nil {
		o.Logger.Info().
			Str("order_ref", req.OrderRef).
			Str("from", backend.Name()).
			Str("reason", res.Message).
			Msg("falling back to mock backend")
		if obs.PaymentFallbackTotal != nil {
			obs.PaymentFallbackTotal.WithLabelValues(backend.Name(), "technical").Inc()
		}
		return o.attempt(ctx, o.Mock, attempt, req.Amount)
	}
	return res
}

// attempt runs a single backend attempt under the configured timeout and
// classifies its outcome.
func (o *Orchestrator) attempt(ctx context.Context, backend Backend, attempt Attempt, amount decimal.Decimal) Result {
	timeout := o.Cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	receipt, err := backend.Open(actx, attempt)
	switch {
	case err == nil && strings.TrimSpace(receipt.TransactionID) == "":
		o.Logger.Error().
			Str("order_ref", attempt.OrderRef).
			Str("backend", backend.Name()).
			Msg("backend returned no transaction id")
		res := failure(attempt.Method, KindTechnical, "backend returned no transaction id")
		res.Backend = backend.Name()
		return res
	case err == nil:
		res := success(attempt, amount, backend.Name(), receipt, time.Now().UTC())
		o.Logger.Info().
			Str("order_ref", attempt.OrderRef).
			Str("backend", backend.Name()).
			Str("transaction_id", res.TransactionID).
			Msg("payment captured")
		return res
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		res := failure(attempt.Method, KindCancelled, "payment cancelled by user")
		res.Backend = backend.Name()
		return res
	default:
		o.Logger.Error().Err(err).
			Str("order_ref", attempt.OrderRef).
			Str("backend", backend.Name()).
			Msg("payment attempt failed")
		res := failure(attempt.Method, KindTechnical, err.Error())
		res.Backend = backend.Name()
		return res
	}
}

// route picks the backend for a method. It returns the name of the
// backend routed away from when a capability hop happened.
func (o *Orchestrator) route(m Method) (Backend, string) {
	switch m.Kind {
	case MethodGatewayNative:
		if !o.Cfg.NativeEnabled || o.Native == nil {
			return o.Web, "gateway_native"
		}
		return o.Native, ""
	case MethodGatewayWeb:
		return o.Web, ""
	case MethodUPIApp, MethodUPIID:
		return o.UPI, ""
	case MethodMock:
		return o.Mock, ""
	default:
		return nil, ""
	}
}

// validate applies the method-aware identity and amount rules. A failed
// validation terminates the flow before any backend is touched.
func (o *Orchestrator) validate(req Request) (Result, bool) {
	switch req.Method.Kind {
	case MethodGatewayNative, MethodGatewayWeb, MethodUPIApp, MethodUPIID, MethodMock:
	default:
		return failure(req.Method, KindUnsupportedMethod,
			fmt.Sprintf("unsupported payment method %s", req.Method)), false
	}

	if !req.Amount.IsPositive() {
		return failure(req.Method, KindValidation, "amount must be positive"), false
	}
	if req.Amount.LessThan(o.Cfg.MinAmount) {
		return failure(req.Method, KindValidation,
			fmt.Sprintf("amount below minimum %s", o.Cfg.MinAmount)), false
	}
	if o.Cfg.MaxAmount.IsPositive() && req.Amount.GreaterThan(o.Cfg.MaxAmount) {
		return failure(req.Method, KindValidation,
			fmt.Sprintf("amount above maximum %s", o.Cfg.MaxAmount)), false
	}

	switch req.Method.Kind {
	case MethodUPIApp:
		if strings.TrimSpace(req.Method.AppID) == "" {
			return failure(req.Method, KindValidation, "UPI app id is required"), false
		}
	case MethodUPIID:
		if !ValidVPA(req.Method.VPA) {
			return failure(req.Method, KindValidation, "invalid UPI address"), false
		}
	case MethodGatewayNative, MethodGatewayWeb:
		if strings.TrimSpace(req.Customer.Name) == "" {
			return failure(req.Method, KindValidation, "customer name is required"), false
		}
	}
	return Result{}, true
}

func resultLabel(res Result) string {
	if res.Success {
		return "success"
	}
	return strings.ToLower(string(res.Kind))
}

var _ zerolog.LogObjectMarshaler = Result{}

// MarshalZerologObject lets results be logged structurally.
func (r Result) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("success", r.Success).Str("method", r.Method.String())
	if r.Success {
		e.Str("transaction_id", r.TransactionID).Str("backend", r.Backend)
		return
	}
	e.Str("kind", string(r.Kind)).Str("message", r.Message)
}
