package payment

import "fmt"

// MethodKind discriminates the payment method variants. Dispatch on it is
// exhaustive; an unknown kind resolves to an unsupported-method failure
// rather than a silent default.
type MethodKind int

const (
	// MethodGatewayNative is the in-app gateway SDK integration.
	MethodGatewayNative MethodKind = iota + 1
	// MethodGatewayWeb is the browser-based gateway checkout flow.
	MethodGatewayWeb
	// MethodUPIApp targets a specific UPI application via deep link.
	MethodUPIApp
	// MethodUPIID targets a virtual payment address directly.
	MethodUPIID
	// MethodMock is the deterministic simulated backend.
	MethodMock
)

// Method is a payment method variant together with its payload.
type Method struct {
	Kind  MethodKind
	AppID string // set for MethodUPIApp
	VPA   string // set for MethodUPIID
}

// GatewayNative selects the native gateway integration.
func GatewayNative() Method { return Method{Kind: MethodGatewayNative} }

// GatewayWeb selects the browser-based gateway flow.
func GatewayWeb() Method { return Method{Kind: MethodGatewayWeb} }

// UPIApp selects a UPI deep-link attempt against the given app.
func UPIApp(appID string) Method { return Method{Kind: MethodUPIApp, AppID: appID} }

// UPIID selects a UPI attempt against a virtual payment address.
func UPIID(vpa string) Method { return Method{Kind: MethodUPIID, VPA: vpa} }

// Mock selects the deterministic simulated backend.
func Mock() Method { return Method{Kind: MethodMock} }

// IsUPI reports whether the method belongs to the UPI family, which has
// relaxed customer-identity requirements.
func (m Method) IsUPI() bool {
	return m.Kind == MethodUPIApp || m.Kind == MethodUPIID
}

func (m Method) String() string {
	switch m.Kind {
	case MethodGatewayNative:
		return "gateway_native"
	case MethodGatewayWeb:
		return "gateway_web"
	case MethodUPIApp:
		return "upi_app"
	case MethodUPIID:
		return "upi_id"
	case MethodMock:
		return "mock"
	default:
		return fmt.Sprintf("unknown(%d)", int(m.Kind))
	}
}

// ParseMethod maps the wire representation of a method to its variant.
func ParseMethod(kind, appID, vpa string) (Method, error) {
	switch kind {
	case "gateway_native", "GATEWAY_NATIVE":
		return GatewayNative(), nil
	case "gateway_web", "GATEWAY_WEB":
		return GatewayWeb(), nil
	case "upi_app", "UPI_APP":
		return UPIApp(appID), nil
	case "upi_id", "UPI_ID":
		return UPIID(vpa), nil
	case "mock", "MOCK":
		return Mock(), nil
	default:
		return Method{}, fmt.Errorf("payment: unsupported method %q", kind)
	}
}
