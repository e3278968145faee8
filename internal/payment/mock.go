package payment

import (
	"context"
	"time"
)

// MockBackend simulates a gateway for development builds and as the
// last-resort fallback after a technical failure. It waits a fixed delay
// and then succeeds unconditionally with a deterministic receipt.
type MockBackend struct {
	Delay time.Duration
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Open(ctx context.Context, attempt Attempt) (Receipt, error) {
	delay := m.Delay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case <-timer.C:
	}
	return Receipt{
		TransactionID:  "MOCK-" + attempt.OrderRef,
		GatewayOrderID: "order_mock_" + attempt.OrderRef,
	}, nil
}
