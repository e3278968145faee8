package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dukaan/internal/common"
)

// GatewayConfig carries the credentials shared by the native and web
// gateway backends. In sandbox mode receipts are synthesised locally so
// the flow is exercisable without live gateway credentials.
type GatewayConfig struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	WebBaseURL string
	Sandbox    bool
}

// NativeGateway drives the gateway's native in-app SDK flow.
type NativeGateway struct {
	Cfg    GatewayConfig
	Logger zerolog.Logger
}

func (g *NativeGateway) Name() string { return "gateway_native" }

func (g *NativeGateway) Open(ctx context.Context, attempt Attempt) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if !g.Cfg.Sandbox {
		return Receipt{}, common.NewAppError(common.CodeTechnical,
			"native gateway credentials not configured", 502, nil)
	}
	rcpt := synthesizeReceipt(g.Cfg.KeySecret, "native", attempt.OrderRef)
	g.Logger.Debug().
		Str("backend", g.Name()).
		Str("order_ref", attempt.OrderRef).
		Str("gateway_order_id", rcpt.GatewayOrderID).
		Msg("gateway checkout opened")
	return rcpt, nil
}

// WebGateway drives the hosted checkout page flow. It is the capability
// fallback for devices where the native SDK is unavailable.
type WebGateway struct {
	Cfg    GatewayConfig
	Logger zerolog.Logger
}

func (g *WebGateway) Name() string { return "gateway_web" }

func (g *WebGateway) Open(ctx context.Context, attempt Attempt) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if !g.Cfg.Sandbox {
		return Receipt{}, common.NewAppError(common.CodeTechnical,
			"web gateway credentials not configured", 502, nil)
	}
	rcpt := synthesizeReceipt(g.Cfg.KeySecret, "web", attempt.OrderRef)
	g.Logger.Debug().
		Str("backend", g.Name()).
		Str("order_ref", attempt.OrderRef).
		Str("checkout_url", g.Cfg.WebBaseURL).
		Msg("hosted checkout opened")
	return rcpt, nil
}

// synthesizeReceipt builds a deterministic sandbox receipt. The signature
// is an HMAC over "orderID|paymentID" with the key secret, matching the
// gateway's webhook signature scheme.
func synthesizeReceipt(secret, flow, orderRef string) Receipt {
	orderID := fmt.Sprintf("order_%s_%s", flow, orderRef)
	paymentID := fmt.Sprintf("pay_%s_%s", flow, orderRef)
	return Receipt{
		TransactionID:  paymentID,
		GatewayOrderID: orderID,
		Signature:      SignReceipt(secret, orderID, paymentID),
	}
}

// SignReceipt computes the gateway signature for an order/payment pair.
func SignReceipt(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyReceipt reports whether a receipt signature matches the pair it
// claims to cover.
func VerifyReceipt(secret string, rcpt Receipt) bool {
	want := SignReceipt(secret, rcpt.GatewayOrderID, rcpt.TransactionID)
	return hmac.Equal([]byte(want), []byte(rcpt.Signature))
}
