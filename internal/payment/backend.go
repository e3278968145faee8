package payment

import (
	"context"
	"errors"
)

// ErrCancelled is reported by a backend when the user abandoned the
// payment UI. It is a normal terminal outcome, not a technical error, and
// must never trigger a fallback attempt.
var ErrCancelled = errors.New("payment: cancelled by user")

// Customer identifies the payer for prefill purposes. Email and phone are
// optional for every method.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Attempt captures everything a backend needs to open a payment. Amounts
// cross this boundary in minor units (paise); the conversion from the
// decimal major-unit amount happens exactly once, when the orchestrator
// builds the Attempt.
type Attempt struct {
	Method           Method
	AmountMinorUnits int64
	Currency         string
	OrderRef         string
	Description      string
	Customer         Customer
	Notes            map[string]string
}

// Receipt is what a backend returns for a completed transaction.
type Receipt struct {
	TransactionID  string
	GatewayOrderID string
	Signature      string
}

// Backend abstracts a payment destination: the native gateway SDK, the
// web checkout flow, the UPI rails or the mock. Open blocks until the
// backend reports an outcome or the context expires.
type Backend interface {
	Name() string
	Open(ctx context.Context, attempt Attempt) (Receipt, error)
}
