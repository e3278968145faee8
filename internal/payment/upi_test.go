package payment

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidVPA(t *testing.T) {
	valid := []string{"asha@okbank", "ravi.kumar@upi", "shop-42@ybl", "a_b@icici"}
	for _, v := range valid {
		assert.True(t, ValidVPA(v), v)
	}
	invalid := []string{"", "asha", "@okbank", "a@", "asha@ok bank", "asha@ok@bank"}
	for _, v := range invalid {
		assert.False(t, ValidVPA(v), v)
	}
}

func TestUPIIntentLink(t *testing.T) {
	link := UPIIntentLink("dukaan@icici", "Dukaan Store", 12150, "INR", "ord-9", "groceries")

	require.True(t, strings.HasPrefix(link, "upi://pay?"))
	u, err := url.Parse(link)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "dukaan@icici", q.Get("pa"))
	assert.Equal(t, "121.50", q.Get("am"))
	assert.Equal(t, "INR", q.Get("cu"))
	assert.Equal(t, "ord-9", q.Get("tr"))
	assert.Equal(t, "groceries", q.Get("tn"))
}

func TestUPIBackendSandboxReceipt(t *testing.T) {
	u := &UPIBackend{PayeeVPA: "dukaan@icici", PayeeName: "Dukaan", Sandbox: true, Logger: zerolog.Nop()}

	rcpt, err := u.Open(context.Background(), Attempt{
		Method:           UPIID("asha@okbank"),
		AmountMinorUnits: 5000,
		Currency:         "INR",
		OrderRef:         "ord-5",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_upi_ord-5", rcpt.TransactionID)
}

func TestUPIBackendRejectsMalformedVPA(t *testing.T) {
	u := &UPIBackend{PayeeVPA: "dukaan@icici", Sandbox: true, Logger: zerolog.Nop()}

	_, err := u.Open(context.Background(), Attempt{Method: UPIID("nope"), OrderRef: "ord-6"})
	assert.Error(t, err)
}
