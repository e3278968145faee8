package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-dukaan/internal/fees"
	"github.com/noah-isme/backend-dukaan/internal/pricing"
)

func newTestHandler(t *testing.T) (*Handler, *chi.Mux) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &Handler{
		Svc:    &Service{Client: client, TTL: time.Hour},
		Engine: &pricing.Engine{Fees: fees.Static{"veg": dec("5")}},
		Schedule: pricing.Schedule{
			ShippingFee:           dec("20"),
			FreeShippingThreshold: dec("500"),
			PlatformFee:           dec("2"),
		},
		Validate: validator.New(),
		Currency: "INR",
	}
	r := chi.NewRouter()
	r.Route("/carts", h.Routes)
	return h, r
}

func TestHandlerCartLifecycle(t *testing.T) {
	_, r := newTestHandler(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	cartID := created.Data.ID
	require.NotEmpty(t, cartID)

	body := `{"productId":"p1","name":"Paneer","unitPrice":"45","qty":2,"gstPercent":"5","categoryId":"veg"}`
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+cartID+"/items", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/carts/"+cartID+"/quote", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var quote struct {
		Data struct {
			Totals map[string]any `json:"totals"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	// 90 subtotal + 4.50 gst + 5 handling + 20 shipping + 2 platform
	assert.Equal(t, "121.5", quote.Data.Totals["grandTotal"])
}

func TestHandlerAddItemValidation(t *testing.T) {
	h, r := newTestHandler(t)
	c, err := h.Svc.Create(context.Background())
	require.NoError(t, err)

	cases := []struct {
		name string
		body string
	}{
		{"missing product", `{"unitPrice":"45","qty":1}`},
		{"zero qty", `{"productId":"p1","unitPrice":"45","qty":0}`},
		{"bad price", `{"productId":"p1","unitPrice":"abc","qty":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+c.ID+"/items", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
}

func TestHandlerUnknownCartIs404(t *testing.T) {
	_, r := newTestHandler(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/carts/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/carts/missing/quote", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
