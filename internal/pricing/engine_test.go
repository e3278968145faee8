package pricing_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-dukaan/internal/fees"
	"github.com/noah-isme/backend-dukaan/internal/pricing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testSchedule() pricing.Schedule {
	return pricing.Schedule{
		ShippingFee:           dec("20"),
		FreeShippingThreshold: dec("500"),
		PlatformFee:           dec("2"),
	}
}

func TestTotalsScenario(t *testing.T) {
	engine := &pricing.Engine{Fees: fees.Static{"veg": dec("5")}}
	lines := []pricing.Line{{
		ProductID:  "p1",
		UnitPrice:  dec("45"),
		Qty:        2,
		GSTPercent: decPtr("5"),
		CategoryID: "veg",
	}}

	totals, err := engine.Totals(context.Background(), lines, testSchedule())
	require.NoError(t, err)

	require.True(t, totals.Subtotal.Equal(dec("90")), "subtotal %s", totals.Subtotal)
	require.True(t, totals.GST.Equal(dec("4.5")), "gst %s", totals.GST)
	require.True(t, totals.Shipping.Equal(dec("20")), "shipping %s", totals.Shipping)
	require.True(t, totals.HandlingFee.Equal(dec("5")), "handling %s", totals.HandlingFee)
	require.True(t, totals.PlatformFee.Equal(dec("2")))
	require.True(t, totals.Discount.IsZero())
	require.True(t, totals.GrandTotal.Equal(dec("121.5")), "grand %s", totals.GrandTotal)
	require.Empty(t, totals.Warnings)
}

func TestTotalsFreeShippingDropsExactlyTheFee(t *testing.T) {
	engine := &pricing.Engine{Fees: fees.Static{"veg": dec("5")}}
	base := pricing.Line{ProductID: "p1", UnitPrice: dec("45"), GSTPercent: decPtr("5"), CategoryID: "veg"}

	below := base
	below.Qty = 2 // subtotal 90
	above := base
	above.Qty = 14 // subtotal 630

	ctx := context.Background()
	withShipping, err := engine.Totals(ctx, []pricing.Line{below}, testSchedule())
	require.NoError(t, err)
	free, err := engine.Totals(ctx, []pricing.Line{above}, testSchedule())
	require.NoError(t, err)

	require.True(t, withShipping.Shipping.Equal(dec("20")))
	require.True(t, free.Shipping.IsZero())

	// Same cart with subtotal pushed over the threshold loses exactly the
	// shipping fee relative to its own components.
	expected := free.Subtotal.Sub(free.Discount).Add(free.GST).Add(free.HandlingFee).Add(free.PlatformFee)
	require.True(t, free.GrandTotal.Equal(expected))
}

func TestShippingThresholdIsInclusive(t *testing.T) {
	schedule := testSchedule()
	require.True(t, pricing.Shipping(dec("500"), schedule).IsZero())
	require.True(t, pricing.Shipping(dec("500.00"), schedule).IsZero())
	require.True(t, pricing.Shipping(dec("499.99"), schedule).Equal(dec("20")))
}

func TestGSTNilRateEqualsZeroRate(t *testing.T) {
	withNil := []pricing.Line{{ProductID: "p1", UnitPrice: dec("100"), Qty: 3}}
	withZero := []pricing.Line{{ProductID: "p1", UnitPrice: dec("100"), Qty: 3, GSTPercent: decPtr("0")}}
	require.True(t, pricing.GST(withNil).Equal(pricing.GST(withZero)))
	require.True(t, pricing.GST(withNil).IsZero())
}

func TestDiscountIgnoresRaisedPrices(t *testing.T) {
	lines := []pricing.Line{
		{ProductID: "p1", UnitPrice: dec("100"), DiscountedUnitPrice: decPtr("80"), Qty: 2},
		{ProductID: "p2", UnitPrice: dec("50"), DiscountedUnitPrice: decPtr("60"), Qty: 1},
	}
	require.True(t, pricing.Discount(lines).Equal(dec("40")))
}

func TestSubtotalUsesDiscountedPrice(t *testing.T) {
	lines := []pricing.Line{{ProductID: "p1", UnitPrice: dec("100"), DiscountedUnitPrice: decPtr("80"), Qty: 2}}
	require.True(t, pricing.Subtotal(lines).Equal(dec("160")))
	require.True(t, pricing.Subtotal(nil).IsZero())
}

func TestValidateLines(t *testing.T) {
	cases := []struct {
		name string
		line pricing.Line
		want error
	}{
		{"zero qty", pricing.Line{ProductID: "p1", UnitPrice: dec("10"), Qty: 0}, pricing.ErrLineQty},
		{"negative qty", pricing.Line{ProductID: "p1", UnitPrice: dec("10"), Qty: -1}, pricing.ErrLineQty},
		{"missing product", pricing.Line{UnitPrice: dec("10"), Qty: 1}, pricing.ErrLineProduct},
		{"negative price", pricing.Line{ProductID: "p1", UnitPrice: dec("-1"), Qty: 1}, pricing.ErrLinePrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := pricing.ValidateLines([]pricing.Line{tc.line})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

type recordingLookup struct {
	mu    sync.Mutex
	calls map[string]int
	fees  map[string]decimal.Decimal
	fail  map[string]error
}

func (r *recordingLookup) CategoryHandlingFee(_ context.Context, categoryID string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[categoryID]++
	if err, ok := r.fail[categoryID]; ok {
		return decimal.Zero, err
	}
	return r.fees[categoryID], nil
}

func TestHandlingFeeDeduplicatesCategories(t *testing.T) {
	lookup := &recordingLookup{fees: map[string]decimal.Decimal{"veg": dec("5"), "dairy": dec("8")}}
	engine := &pricing.Engine{Fees: lookup}
	lines := []pricing.Line{
		{ProductID: "p1", UnitPrice: dec("10"), Qty: 1, CategoryID: "veg"},
		{ProductID: "p2", UnitPrice: dec("10"), Qty: 1, CategoryID: "veg"},
		{ProductID: "p3", UnitPrice: dec("10"), Qty: 1, CategoryID: "dairy"},
		{ProductID: "p4", UnitPrice: dec("10"), Qty: 1, CategoryID: "dairy"},
	}

	fee, warnings := engine.HandlingFee(context.Background(), lines)
	require.Empty(t, warnings)
	require.True(t, fee.Equal(dec("13")), "handling fee is per category, not per line")
	require.Equal(t, 1, lookup.calls["veg"])
	require.Equal(t, 1, lookup.calls["dairy"])
}

func TestHandlingFeeDefaultsFailedCategoryToZero(t *testing.T) {
	lookup := &recordingLookup{
		fees: map[string]decimal.Decimal{"veg": dec("5")},
		fail: map[string]error{"dairy": errors.New("fee service down")},
	}
	engine := &pricing.Engine{Fees: lookup}
	lines := []pricing.Line{
		{ProductID: "p1", UnitPrice: dec("10"), Qty: 1, CategoryID: "veg"},
		{ProductID: "p2", UnitPrice: dec("10"), Qty: 1, CategoryID: "dairy"},
	}

	fee, warnings := engine.HandlingFee(context.Background(), lines)
	require.True(t, fee.Equal(dec("5")), "failed category defaults to zero without aborting")
	require.Len(t, warnings, 1)
	require.Equal(t, "dairy", warnings[0].CategoryID)
}

func TestHandlingFeeIgnoresLinesWithoutCategory(t *testing.T) {
	lookup := fees.LookupFunc(func(_ context.Context, categoryID string) (decimal.Decimal, error) {
		t.Errorf("unexpected lookup for category %q", categoryID)
		return decimal.Zero, nil
	})
	engine := &pricing.Engine{Fees: lookup}
	lines := []pricing.Line{{ProductID: "p1", UnitPrice: dec("10"), Qty: 1}}

	fee, warnings := engine.HandlingFee(context.Background(), lines)
	require.True(t, fee.IsZero())
	require.Empty(t, warnings)
}

func TestTotalsIdempotent(t *testing.T) {
	engine := &pricing.Engine{Fees: fees.Static{"veg": dec("5")}}
	lines := []pricing.Line{{ProductID: "p1", UnitPrice: dec("45"), Qty: 2, GSTPercent: decPtr("5"), CategoryID: "veg"}}

	first, err := engine.Totals(context.Background(), lines, testSchedule())
	require.NoError(t, err)
	second, err := engine.Totals(context.Background(), lines, testSchedule())
	require.NoError(t, err)
	require.True(t, first.GrandTotal.Equal(second.GrandTotal))
	require.True(t, first.Subtotal.Equal(second.Subtotal))
}

func TestGrandTotalInvariantHoldsForRandomCarts(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	schedule := testSchedule()
	feeTable := fees.Static{
		"veg":     dec("5"),
		"dairy":   dec("8"),
		"frozen":  dec("12.5"),
		"general": dec("0"),
	}
	categories := []string{"veg", "dairy", "frozen", "general", ""}
	engine := &pricing.Engine{Fees: feeTable}

	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(8)
		lines := make([]pricing.Line, 0, n)
		for j := 0; j < n; j++ {
			unit := decimal.NewFromInt(int64(1 + rng.Intn(900))).Add(decimal.New(int64(rng.Intn(100)), -2))
			line := pricing.Line{
				ProductID:  "p",
				UnitPrice:  unit,
				Qty:        int64(1 + rng.Intn(5)),
				CategoryID: categories[rng.Intn(len(categories))],
			}
			if rng.Intn(2) == 0 {
				disc := unit.Mul(dec("0.9"))
				line.DiscountedUnitPrice = &disc
			}
			if rng.Intn(3) != 0 {
				rate := decimal.NewFromInt(int64(rng.Intn(29)))
				line.GSTPercent = &rate
			}
			lines = append(lines, line)
		}

		totals, err := engine.Totals(context.Background(), lines, schedule)
		require.NoError(t, err)

		expected := totals.Subtotal.
			Sub(totals.Discount).
			Add(totals.GST).
			Add(totals.HandlingFee).
			Add(totals.Shipping).
			Add(totals.PlatformFee)
		require.True(t, totals.GrandTotal.Equal(expected),
			"iteration %d: grand total %s != %s", i, totals.GrandTotal, expected)
		require.False(t, totals.Discount.IsNegative())
	}
}

func TestSubtotalMonotonicInQuantity(t *testing.T) {
	line := pricing.Line{ProductID: "p1", UnitPrice: dec("19.99"), Qty: 1}
	prev := pricing.Subtotal([]pricing.Line{line})
	for qty := int64(2); qty <= 10; qty++ {
		line.Qty = qty
		next := pricing.Subtotal([]pricing.Line{line})
		require.True(t, next.GreaterThan(prev))
		prev = next
	}
}

func TestPresentedRoundsToTwoPlaces(t *testing.T) {
	engine := &pricing.Engine{Fees: fees.Static{}}
	lines := []pricing.Line{{ProductID: "p1", UnitPrice: dec("33.333"), Qty: 3, GSTPercent: decPtr("5")}}
	totals, err := engine.Totals(context.Background(), lines, testSchedule())
	require.NoError(t, err)

	presented := totals.Presented()
	require.Equal(t, "100.00", presented.Subtotal.StringFixed(2), "99.999 rounds up at the boundary")
	require.True(t, totals.Subtotal.Equal(dec("99.999")), "intermediate values keep full precision")
}
