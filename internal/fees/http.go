package fees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dukaan/internal/obs"
	"github.com/noah-isme/backend-dukaan/internal/resilience"
)

// HTTPLookup fetches category handling fees from the fee-schedule service.
type HTTPLookup struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
}

type feeResponse struct {
	CategoryID  string          `json:"categoryId"`
	HandlingFee decimal.Decimal `json:"handlingFee"`
}

// CategoryHandlingFee resolves a single category fee. Transport errors and
// non-200 responses are returned to the caller, which defaults the fee to
// zero for that category.
func (l HTTPLookup) CategoryHandlingFee(ctx context.Context, categoryID string) (decimal.Decimal, error) {
	if l.HTTP == nil {
		return decimal.Zero, errors.New("fees: http client not configured")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return decimal.Zero, errors.New("fees: category id is required")
	}
	endpoint := fmt.Sprintf("%s/categories/%s/handling-fee",
		strings.TrimRight(strings.TrimSpace(l.BaseURL), "/"), url.PathEscape(categoryID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.HTTP.Do(ctx, req)
	if err != nil {
		recordLookup("error")
		return decimal.Zero, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		recordLookup("not_found")
		return decimal.Zero, ErrUnknownCategory
	default:
		recordLookup("error")
		return decimal.Zero, fmt.Errorf("fees: unexpected status %s", resp.Status)
	}

	var body feeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		recordLookup("error")
		return decimal.Zero, fmt.Errorf("fees: decode response: %w", err)
	}
	if body.HandlingFee.IsNegative() {
		recordLookup("error")
		return decimal.Zero, fmt.Errorf("fees: negative fee for category %s", categoryID)
	}
	recordLookup("success")
	return body.HandlingFee, nil
}

func recordLookup(result string) {
	if obs.FeeLookupTotal != nil {
		obs.FeeLookupTotal.WithLabelValues(result).Inc()
	}
}
