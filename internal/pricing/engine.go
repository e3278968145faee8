// Package pricing derives order totals from a cart snapshot and the fee
// schedule. All arithmetic stays at full decimal precision; rounding is
// the caller's concern at the presentation boundary.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-dukaan/internal/fees"
	"github.com/noah-isme/backend-dukaan/internal/money"
	"github.com/noah-isme/backend-dukaan/internal/obs"
)

var (
	// ErrLineQty is returned for a line without a positive quantity.
	ErrLineQty = errors.New("pricing: line quantity must be at least 1")
	// ErrLineProduct is returned for a line without a product reference.
	ErrLineProduct = errors.New("pricing: line is missing a product reference")
	// ErrLinePrice is returned for a line with a negative price.
	ErrLinePrice = errors.New("pricing: line price must not be negative")
)

var hundred = decimal.NewFromInt(100)

// Line is a read-only cart line. A nil DiscountedUnitPrice means no
// discount; a nil GSTPercent means 0%, which is a policy choice rather
// than an error.
type Line struct {
	ProductID           string
	UnitPrice           decimal.Decimal
	DiscountedUnitPrice *decimal.Decimal
	Qty                 int64
	GSTPercent          *decimal.Decimal
	CategoryID          string
}

// effectivePrice is the unit price a buyer actually pays for the line.
func (l Line) effectivePrice() decimal.Decimal {
	if l.DiscountedUnitPrice != nil {
		return *l.DiscountedUnitPrice
	}
	return l.UnitPrice
}

// Schedule carries the flat fees applied on top of line amounts.
type Schedule struct {
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	PlatformFee           decimal.Decimal
}

// Warning records a non-fatal degradation: a category whose handling-fee
// lookup failed and was defaulted to zero.
type Warning struct {
	CategoryID string
	Err        error
}

// Totals aggregates the computed pricing components. Produced once per
// computation, never mutated afterwards.
type Totals struct {
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	GST         decimal.Decimal
	HandlingFee decimal.Decimal
	Shipping    decimal.Decimal
	PlatformFee decimal.Decimal
	GrandTotal  decimal.Decimal
	Warnings    []Warning
}

// Presented returns a copy with every term rounded to two decimal places
// for display. Intermediate values stay at full precision; this is the
// only place pricing output is rounded.
func (t Totals) Presented() Totals {
	return Totals{
		Subtotal:    money.Round2(t.Subtotal),
		Discount:    money.Round2(t.Discount),
		GST:         money.Round2(t.GST),
		HandlingFee: money.Round2(t.HandlingFee),
		Shipping:    money.Round2(t.Shipping),
		PlatformFee: money.Round2(t.PlatformFee),
		GrandTotal:  money.Round2(t.GrandTotal),
		Warnings:    t.Warnings,
	}
}

// ValidateLines rejects lines the calculation must not silently absorb:
// a missing product reference or a non-positive quantity is caller error.
func ValidateLines(lines []Line) error {
	for i, line := range lines {
		if line.ProductID == "" {
			return fmt.Errorf("line %d: %w", i, ErrLineProduct)
		}
		if line.Qty < 1 {
			return fmt.Errorf("line %d: %w", i, ErrLineQty)
		}
		if line.UnitPrice.IsNegative() || (line.DiscountedUnitPrice != nil && line.DiscountedUnitPrice.IsNegative()) {
			return fmt.Errorf("line %d: %w", i, ErrLinePrice)
		}
	}
	return nil
}

// Subtotal sums effective unit price times quantity. An empty cart is 0.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.effectivePrice().Mul(decimal.NewFromInt(line.Qty)))
	}
	return total
}

// Discount sums per-line savings where a discounted price is present and
// lower than the unit price. Never negative.
func Discount(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if line.DiscountedUnitPrice == nil {
			continue
		}
		saving := line.UnitPrice.Sub(*line.DiscountedUnitPrice)
		if saving.IsPositive() {
			total = total.Add(saving.Mul(decimal.NewFromInt(line.Qty)))
		}
	}
	return total
}

// GST sums per-line tax on the price used for the subtotal. A line
// without a GST rate contributes 0.
func GST(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if line.GSTPercent == nil || line.GSTPercent.IsZero() {
			continue
		}
		lineTax := line.effectivePrice().Mul(*line.GSTPercent).Div(hundred).Mul(decimal.NewFromInt(line.Qty))
		total = total.Add(lineTax)
	}
	return total
}

// Shipping is zero at or above the free-shipping threshold (inclusive),
// otherwise the scheduled fee.
func Shipping(subtotal decimal.Decimal, schedule Schedule) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(schedule.FreeShippingThreshold) {
		return decimal.Zero
	}
	return schedule.ShippingFee
}

// Engine computes order totals. Its only collaborator is the injected
// handling-fee lookup; everything else is pure arithmetic.
type Engine struct {
	Fees   fees.Lookup
	Logger *zerolog.Logger
}

var engineNopLogger = zerolog.Nop()

func (e *Engine) logger() *zerolog.Logger {
	if e == nil || e.Logger == nil {
		return &engineNopLogger
	}
	return e.Logger
}

// HandlingFee looks up the flat fee of every distinct category once and
// sums them. Lookups run concurrently; a failed lookup defaults that
// category to zero and is reported as a warning, never as an error. The
// result is assembled only after every lookup has finished.
func (e *Engine) HandlingFee(ctx context.Context, lines []Line) (decimal.Decimal, []Warning) {
	if e == nil || e.Fees == nil {
		return decimal.Zero, nil
	}
	seen := make(map[string]struct{}, len(lines))
	categories := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.CategoryID == "" {
			continue
		}
		if _, ok := seen[line.CategoryID]; ok {
			continue
		}
		seen[line.CategoryID] = struct{}{}
		categories = append(categories, line.CategoryID)
	}
	if len(categories) == 0 {
		return decimal.Zero, nil
	}
	sort.Strings(categories)

	type outcome struct {
		fee decimal.Decimal
		err error
	}
	outcomes := make([]outcome, len(categories))
	var wg sync.WaitGroup
	for i, category := range categories {
		wg.Add(1)
		go func(i int, category string) {
			defer wg.Done()
			fee, err := e.Fees.CategoryHandlingFee(ctx, category)
			outcomes[i] = outcome{fee: fee, err: err}
		}(i, category)
	}
	wg.Wait()

	total := decimal.Zero
	var warnings []Warning
	for i, category := range categories {
		if outcomes[i].err != nil {
			e.logger().Warn().Str("category_id", category).Err(outcomes[i].err).Msg("handling fee lookup failed, defaulting to 0")
			warnings = append(warnings, Warning{CategoryID: category, Err: outcomes[i].err})
			continue
		}
		total = total.Add(outcomes[i].fee)
	}
	return total, warnings
}

// Totals composes all pricing components into a single immutable result.
// Calling twice with the same inputs yields the same output.
func (e *Engine) Totals(ctx context.Context, lines []Line, schedule Schedule) (Totals, error) {
	ctx, span := otel.Tracer("pricing.Engine").Start(ctx, "PricingEngine.Totals")
	defer span.End()
	start := time.Now()
	defer func() {
		if obs.PricingComputeSeconds != nil {
			obs.PricingComputeSeconds.Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	if err := ValidateLines(lines); err != nil {
		span.RecordError(err)
		return Totals{}, err
	}

	subtotal := Subtotal(lines)
	discount := Discount(lines)
	gst := GST(lines)
	shipping := Shipping(subtotal, schedule)
	handling, warnings := e.HandlingFee(ctx, lines)

	grand := subtotal.Sub(discount).Add(gst).Add(handling).Add(shipping).Add(schedule.PlatformFee)
	span.SetAttributes(
		attribute.Int("pricing.lines", len(lines)),
		attribute.Int("pricing.fee_warnings", len(warnings)),
		attribute.String("pricing.grand_total", grand.String()),
	)
	return Totals{
		Subtotal:    subtotal,
		Discount:    discount,
		GST:         gst,
		HandlingFee: handling,
		Shipping:    shipping,
		PlatformFee: schedule.PlatformFee,
		GrandTotal:  grand,
		Warnings:    warnings,
	}, nil
}
