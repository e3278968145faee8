package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	name    string
	receipt Receipt
	err     error
	calls   int
	last    Attempt
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Open(ctx context.Context, attempt Attempt) (Receipt, error) {
	s.calls++
	s.last = attempt
	return s.receipt, s.err
}

// blockingBackend waits for the attempt context to expire.
type blockingBackend struct{ calls int }

func (b *blockingBackend) Name() string { return "blocking" }

func (b *blockingBackend) Open(ctx context.Context, _ Attempt) (Receipt, error) {
	b.calls++
	<-ctx.Done()
	return Receipt{}, ctx.Err()
}

func testConfig() Config {
	return Config{
		Currency:       "INR",
		MinAmount:      decimal.NewFromInt(1),
		MaxAmount:      decimal.NewFromInt(100000),
		AttemptTimeout: time.Second,
		NativeEnabled:  true,
	}
}

func newOrchestrator(cfg Config) (*Orchestrator, *stubBackend, *stubBackend, *stubBackend, *stubBackend) {
	native := &stubBackend{name: "gateway_native", receipt: Receipt{TransactionID: "pay_native_1", GatewayOrderID: "order_native_1"}}
	web := &stubBackend{name: "gateway_web", receipt: Receipt{TransactionID: "pay_web_1", GatewayOrderID: "order_web_1"}}
	upi := &stubBackend{name: "upi", receipt: Receipt{TransactionID: "pay_upi_1", GatewayOrderID: "order_upi_1"}}
	mock := &stubBackend{name: "mock", receipt: Receipt{TransactionID: "MOCK-1", GatewayOrderID: "order_mock_1"}}
	o := &Orchestrator{
		Cfg:    cfg,
		Native: native,
		Web:    web,
		UPI:    upi,
		Mock:   mock,
		Logger: zerolog.Nop(),
	}
	return o, native, web, upi, mock
}

func TestProcessSuccessCarriesReceipt(t *testing.T) {
	o, native, _, _, _ := newOrchestrator(testConfig())
	amount := decimal.RequireFromString("121.50")

	res := o.Process(context.Background(), Request{
		Method:   GatewayNative(),
		Amount:   amount,
		OrderRef: "ord-1",
		Customer: Customer{Name: "Asha"},
	})

	require.True(t, res.Success)
	assert.Equal(t, "pay_native_1", res.TransactionID)
	assert.Equal(t, "gateway_native", res.Backend)
	assert.True(t, amount.Equal(res.Amount))
	assert.False(t, res.Timestamp.IsZero())
	assert.Equal(t, 1, native.calls)
	assert.Equal(t, int64(12150), native.last.AmountMinorUnits, "amount must cross the backend boundary in paise")
	assert.Equal(t, "INR", native.last.Currency)
}

func TestProcessValidationMakesNoBackendCalls(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		kind FailureKind
	}{
		{"zero amount", Request{Method: Mock(), Amount: decimal.Zero}, KindValidation},
		{"negative amount", Request{Method: Mock(), Amount: decimal.NewFromInt(-5)}, KindValidation},
		{"below minimum", Request{Method: Mock(), Amount: decimal.RequireFromString("0.50")}, KindValidation},
		{"above maximum", Request{Method: Mock(), Amount: decimal.NewFromInt(200000)}, KindValidation},
		{"gateway without name", Request{Method: GatewayNative(), Amount: decimal.NewFromInt(100)}, KindValidation},
		{"web gateway without name", Request{Method: GatewayWeb(), Amount: decimal.NewFromInt(100)}, KindValidation},
		{"malformed vpa", Request{Method: UPIID("not-a-vpa"), Amount: decimal.NewFromInt(100)}, KindValidation},
		{"empty upi app id", Request{Method: UPIApp("  "), Amount: decimal.NewFromInt(100)}, KindValidation},
		{"unknown method", Request{Method: Method{Kind: MethodKind(99)}, Amount: decimal.NewFromInt(100)}, KindUnsupportedMethod},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, native, web, upi, mock := newOrchestrator(testConfig())
			res := o.Process(context.Background(), tc.req)
			require.False(t, res.Success)
			assert.Equal(t, tc.kind, res.Kind)
			total := native.calls + web.calls + upi.calls + mock.calls
			assert.Zero(t, total, "rejected requests must not reach a backend")
		})
	}
}

func TestProcessUPINeedsNoCustomerIdentity(t *testing.T) {
	o, _, _, upi, _ := newOrchestrator(testConfig())

	res := o.Process(context.Background(), Request{
		Method:   UPIID("asha@okbank"),
		Amount:   decimal.NewFromInt(250),
		OrderRef: "ord-upi",
	})

	require.True(t, res.Success)
	assert.Equal(t, 1, upi.calls)
	assert.Empty(t, upi.last.Customer.Name)
}

func TestProcessNativeUnavailableRoutesToWeb(t *testing.T) {
	cfg := testConfig()
	cfg.NativeEnabled = false
	o, native, web, _, _ := newOrchestrator(cfg)

	res := o.Process(context.Background(), Request{
		Method:   GatewayNative(),
		Amount:   decimal.NewFromInt(300),
		OrderRef: "ord-cap",
		Customer: Customer{Name: "Asha"},
	})

	require.True(t, res.Success)
	assert.Equal(t, "gateway_web", res.Backend)
	assert.Zero(t, native.calls)
	assert.Equal(t, 1, web.calls)
	assert.Equal(t, MethodGatewayNative, web.last.Method.Kind, "requested method is preserved across the capability hop")
}

func TestProcessCancellationNeverFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.MockFallback = true
	o, native, _, _, mock := newOrchestrator(cfg)
	native.err = ErrCancelled

	res := o.Process(context.Background(), Request{
		Method:   GatewayNative(),
		Amount:   decimal.NewFromInt(500),
		OrderRef: "ord-can",
		Customer: Customer{Name: "Asha"},
	})

	require.False(t, res.Success)
	assert.Equal(t, KindCancelled, res.Kind)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, native.calls)
	assert.Zero(t, mock.calls, "cancellation is terminal")
}

func TestProcessUPICancellationNeverFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.MockFallback = true
	o, _, _, upi, mock := newOrchestrator(cfg)
	upi.err = ErrCancelled

	res := o.Process(context.Background(), Request{
		Method:   UPIID("asha@okbank"),
		Amount:   decimal.NewFromInt(500),
		OrderRef: "ord-upi-can",
	})

	require.False(t, res.Success)
	assert.Equal(t, KindCancelled, res.Kind)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, upi.calls)
	assert.Zero(t, mock.calls, "cancellation is terminal")
}

func TestProcessEmptyTransactionIDIsTechnical(t *testing.T) {
	o, native, _, _, mock := newOrchestrator(testConfig())
	native.receipt = Receipt{}

	res := o.Process(context.Background(), Request{
		Method:   GatewayNative(),
		Amount:   decimal.NewFromInt(500),
		OrderRef: "ord-noid",
		Customer: Customer{Name: "Asha"},
	})

	require.False(t, res.Success)
	assert.Equal(t, KindTechnical, res.Kind)
	assert.Empty(t, res.TransactionID)
	assert.Equal(t, 1, native.calls)
	assert.Zero(t, mock.calls)
}

func TestProcessEmptyTransactionIDFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.MockFallback = true
	o, native, _, _, mock := newOrchestrator(cfg)
	native.receipt = Receipt{GatewayOrderID: "order_native_1"}

	res := o.Process(context.Background(), Request{
		Method:   GatewayNative(),
		Amount:   decimal.NewFromInt(500),
		OrderRef: "ord-noid-fb",
		Customer: Customer{Name: "Asha"},
	})

	require.True(t, res.Success)
	assert.Equal(t, "mock", res.Backend)
	assert.Equal(t, "MOCK-1", res.TransactionID)
	assert.Equal(t, 1, native.calls)
	assert.Equal(t, 1, mock.calls)
}

func TestProcessTechnicalFailureFallsBackOnce(t *testing.T) {
	cfg := testConfig()
	cfg.MockFallback = true
	o, native, _, _, mock := newOrchestrator(cfg)
	native.err = errors.New("gateway unreachable")

	res := o.Process(context.Background(), Request{
		Method:   GatewayNative(),
		Amount:   decimal.NewFromInt(500),
		OrderRef: "ord-fb",
		Customer: Customer{Name: "Asha"},
	})

	require.True(t, res.Success)
	assert.Equal(t, "mock", res.Backend)
	assert.Equal(t, "MOCK-1", res.TransactionID)
	assert.Equal(t, 1, native.calls)
	assert.Equal(t, 1, mock.calls)
}

func TestProcessTechnicalFailureWithoutFallbackFlag(t *testing.T) {
	o, native, _, _, mock := newOrchestrator(testConfig())
	native.err = errors.New("gateway unreachable")

	res := o.Process(context.Background(), Request{
		Method:   GatewayNative(),
		Amount:   decimal.NewFromInt(500),
		OrderRef: "ord-nofb",
		Customer: Customer{Name: "Asha"},
	})

	require.False(t, res.Success)
	assert.Equal(t, KindTechnical, res.Kind)
	assert.Equal(t, 1, native.calls)
	assert.Zero(t, mock.calls)
}

func TestProcessMockFailureDoesNotFallBackAgain(t *testing.T) {
	cfg := testConfig()
	cfg.MockFallback = true
	o, native, _, _, mock := newOrchestrator(cfg)
	native.err = errors.New("gateway unreachable")
	mock.err = errors.New("mock also down")

	res := o.Process(context.Background(), Request{
		Method:   GatewayNative(),
		Amount:   decimal.NewFromInt(500),
		OrderRef: "ord-hop",
		Customer: Customer{Name: "Asha"},
	})

	require.False(t, res.Success)
	assert.Equal(t, KindTechnical, res.Kind)
	assert.Equal(t, 1, native.calls)
	assert.Equal(t, 1, mock.calls, "at most one fallback hop")
}

func TestProcessAttemptTimeoutIsTechnical(t *testing.T) {
	cfg := testConfig()
	cfg.AttemptTimeout = 20 * time.Millisecond
	o, _, _, _, _ := newOrchestrator(cfg)
	blocking := &blockingBackend{}
	o.Native = blocking

	res := o.Process(context.Background(), Request{
		Method:   GatewayNative(),
		Amount:   decimal.NewFromInt(500),
		OrderRef: "ord-slow",
		Customer: Customer{Name: "Asha"},
	})

	require.False(t, res.Success)
	assert.Equal(t, KindTechnical, res.Kind)
	assert.Equal(t, 1, blocking.calls)
}

func TestProcessDirectMockMethod(t *testing.T) {
	o := &Orchestrator{
		Cfg:    testConfig(),
		Mock:   &MockBackend{Delay: time.Millisecond},
		Logger: zerolog.Nop(),
	}

	res := o.Process(context.Background(), Request{
		Method:   Mock(),
		Amount:   decimal.NewFromInt(10),
		OrderRef: "ord-mock",
	})

	require.True(t, res.Success)
	assert.Equal(t, "MOCK-ord-mock", res.TransactionID)
}

func TestMockBackendHonoursContext(t *testing.T) {
	m := &MockBackend{Delay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Open(ctx, Attempt{OrderRef: "ord"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("UPI_ID", "", "asha@okbank")
	require.NoError(t, err)
	assert.Equal(t, MethodUPIID, m.Kind)
	assert.Equal(t, "asha@okbank", m.VPA)

	_, err = ParseMethod("CHEQUE", "", "")
	assert.Error(t, err)
}
