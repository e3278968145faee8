package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dukaan/internal/payment"
	"github.com/noah-isme/backend-dukaan/internal/pricing"
)

// ErrNotFound indicates the requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the order lifecycle state. Orders come into existence only
// after payment succeeds, so PAID is the initial state.
type Status string

const (
	StatusPaid      Status = "PAID"
	StatusFulfilled Status = "FULFILLED"
	StatusRefunded  Status = "REFUNDED"
)

// Item is an immutable order line captured at checkout time.
type Item struct {
	ProductID           string           `json:"productId"`
	Name                string           `json:"name"`
	UnitPrice           decimal.Decimal  `json:"unitPrice"`
	DiscountedUnitPrice *decimal.Decimal `json:"discountedUnitPrice,omitempty"`
	Qty                 int64            `json:"qty"`
	GSTPercent          *decimal.Decimal `json:"gstPercent,omitempty"`
	CategoryID          string           `json:"categoryId"`
}

// Proof is the payment evidence attached to every order. An order
// without proof cannot exist.
type Proof struct {
	TransactionID  string          `json:"transactionId"`
	GatewayOrderID string          `json:"gatewayOrderId"`
	Signature      string          `json:"signature,omitempty"`
	Method         string          `json:"method"`
	Backend        string          `json:"backend"`
	Amount         decimal.Decimal `json:"amount"`
	CapturedAt     time.Time       `json:"capturedAt"`
}

// Order is the persisted record of a successful checkout.
type Order struct {
	ID        string
	CartID    string
	Status    Status
	Currency  string
	Items     []Item
	Totals    pricing.Totals
	Proof     Proof
	Customer  payment.Customer
	CreatedAt time.Time
}

// Store persists orders and answers lookups.
type Store interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, limit, offset int) ([]Order, int64, error)
}
