package payment

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dukaan/internal/common"
)

// vpaPattern matches the NPCI virtual payment address shape: a local
// part of word characters, dots and hyphens, then @, then a bank handle.
var vpaPattern = regexp.MustCompile(`^[\w.\-]{2,256}@[a-zA-Z]{2,64}$`)

// ValidVPA reports whether s looks like a well-formed UPI address.
func ValidVPA(s string) bool { return vpaPattern.MatchString(s) }

// UPIIntentLink builds the upi://pay deep link an app or QR code embeds
// for a collect request. Amount is in rupees with two decimals.
func UPIIntentLink(payee, payeeName string, amountMinor int64, currency, txnRef, note string) string {
	q := url.Values{}
	q.Set("pa", payee)
	if payeeName != "" {
		q.Set("pn", payeeName)
	}
	q.Set("am", strconv.FormatFloat(float64(amountMinor)/100, 'f', 2, 64))
	q.Set("cu", currency)
	q.Set("tr", txnRef)
	if note != "" {
		q.Set("tn", note)
	}
	return "upi://pay?" + q.Encode()
}

// UPIBackend handles both UPI flows: launching a specific installed app
// by package id, or a collect request against a user-entered VPA.
type UPIBackend struct {
	// PayeeVPA is the merchant's receiving address.
	PayeeVPA  string
	PayeeName string
	Sandbox   bool
	Logger    zerolog.Logger
}

func (u *UPIBackend) Name() string { return "upi" }

func (u *UPIBackend) Open(ctx context.Context, attempt Attempt) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if attempt.Method.Kind == MethodUPIID && !ValidVPA(attempt.Method.VPA) {
		return Receipt{}, common.NewAppError(common.CodeValidation,
			"invalid UPI address", 422, nil)
	}
	if !u.Sandbox {
		return Receipt{}, common.NewAppError(common.CodeTechnical,
			"UPI PSP credentials not configured", 502, nil)
	}

	link := UPIIntentLink(u.PayeeVPA, u.PayeeName, attempt.AmountMinorUnits, attempt.Currency, attempt.OrderRef, attempt.Description)
	u.Logger.Debug().
		Str("backend", u.Name()).
		Str("order_ref", attempt.OrderRef).
		Str("intent", link).
		Msg("UPI collect initiated")

	orderID := fmt.Sprintf("order_upi_%s", attempt.OrderRef)
	paymentID := fmt.Sprintf("pay_upi_%s", attempt.OrderRef)
	return Receipt{
		TransactionID:  paymentID,
		GatewayOrderID: orderID,
	}, nil
}
