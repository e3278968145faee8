// Package fees provides the category handling-fee lookup used by the
// pricing engine. Lookups may fail per category; callers treat a failure
// as a defaulted zero fee, never as an abort.
package fees

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownCategory is returned when no fee is on record for a category.
var ErrUnknownCategory = errors.New("fees: unknown category")

// Lookup resolves the flat handling fee charged once per distinct category
// present in an order.
type Lookup interface {
	CategoryHandlingFee(ctx context.Context, categoryID string) (decimal.Decimal, error)
}

// Static is a map-backed Lookup for development and tests.
type Static map[string]decimal.Decimal

// CategoryHandlingFee returns the configured fee for the category.
func (s Static) CategoryHandlingFee(_ context.Context, categoryID string) (decimal.Decimal, error) {
	fee, ok := s[strings.TrimSpace(categoryID)]
	if !ok {
		return decimal.Zero, ErrUnknownCategory
	}
	return fee, nil
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(ctx context.Context, categoryID string) (decimal.Decimal, error)

// CategoryHandlingFee implements Lookup.
func (f LookupFunc) CategoryHandlingFee(ctx context.Context, categoryID string) (decimal.Decimal, error) {
	return f(ctx, categoryID)
}
