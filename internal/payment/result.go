package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// FailureKind classifies terminal payment failures.
type FailureKind string

const (
	// KindValidation means the request was rejected before any backend call.
	KindValidation FailureKind = "VALIDATION"
	// KindTechnical means an attempt was made and failed for a
	// backend/transport reason with no fallback available.
	KindTechnical FailureKind = "TECHNICAL"
	// KindCancelled means the user abandoned the attempt. Terminal;
	// distinct from technical so callers can word it differently.
	KindCancelled FailureKind = "CANCELLED"
	// KindUnsupportedMethod means the requested method is not recognised.
	KindUnsupportedMethod FailureKind = "UNSUPPORTED_METHOD"
)

// Result is the single normalised outcome of a payment attempt chain.
// Either Success is true and the transaction fields are populated, or it
// is false and Kind/Message (and possibly Cancelled) describe the failure.
type Result struct {
	Success bool

	TransactionID  string
	GatewayOrderID string
	Signature      string
	Amount         decimal.Decimal
	Method         Method
	Backend        string
	Timestamp      time.Time

	Kind      FailureKind
	Message   string
	Cancelled bool
}

func success(attempt Attempt, amount decimal.Decimal, backend string, receipt Receipt, at time.Time) Result {
	return Result{
		Success:        true,
		TransactionID:  receipt.TransactionID,
		GatewayOrderID: receipt.GatewayOrderID,
		Signature:      receipt.Signature,
		Amount:         amount,
		Method:         attempt.Method,
		Backend:        backend,
		Timestamp:      at,
	}
}

func failure(method Method, kind FailureKind, message string) Result {
	return Result{
		Success:   false,
		Method:    method,
		Kind:      kind,
		Message:   message,
		Cancelled: kind == KindCancelled,
	}
}
