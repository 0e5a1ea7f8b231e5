package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

type pricerFunc func(ctx context.Context, state pricing.CheckoutState) (pricing.Totals, error)

func (f pricerFunc) Compute(ctx context.Context, state pricing.CheckoutState) (pricing.Totals, error) {
	return f(ctx, state)
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Put("/carts/{id}/shipping", h.SelectShipping)
	r.Get("/carts/{id}/checkout/quote", h.Quote)
	return r
}

func TestSelectShippingStoresSelectionAndSignals(t *testing.T) {
	store, _, _ := newTestStore(t)
	bus := &events.Bus{}
	signals, cancel := bus.Subscribe("cart-1")
	defer cancel()
	h := &Handler{Svc: &Service{States: store, Events: bus, Logger: zerolog.Nop()}}

	body := `{"zoneCode":"eu","option":{"courier":"dhl","service":"express","price":1299}}`
	req := httptest.NewRequest(http.MethodPut, "/carts/cart-1/shipping", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	state, err := store.Get(context.Background(), "cart-1")
	require.NoError(t, err)
	require.Equal(t, "EU", state.ZoneCode)
	require.Equal(t, pricing.Money(1299), state.ShippingOptions[0].Price)

	sig := <-signals
	require.Equal(t, events.TopicShippingChanged, sig.Topic)
}

func TestSelectShippingRejectsNegativePrice(t *testing.T) {
	store, _, _ := newTestStore(t)
	h := &Handler{Svc: &Service{States: store, Logger: zerolog.Nop()}}

	body := `{"zoneCode":"EU","option":{"courier":"dhl","price":-5}}`
	req := httptest.NewRequest(http.MethodPut, "/carts/cart-1/shipping", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp struct {
		Error struct {
			Code    string              `json:"code"`
			Details []common.FieldError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	require.Equal(t, "price", resp.Error.Details[0].Field)
}

func TestQuotePassesCallerIdentity(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Save(context.Background(), pricing.CheckoutState{CartID: "cart-1", CouponCode: "SAVE10"}))
	var seen pricing.CheckoutState
	h := &Handler{Svc: &Service{States: store, Pricing: pricerFunc(func(_ context.Context, st pricing.CheckoutState) (pricing.Totals, error) {
		seen = st
		return pricing.Totals{Currency: "EUR", Subtotal: 4000, Discount: 400, TotalIncludingTax: 4955}, nil
	})}}

	req := httptest.NewRequest(http.MethodGet, "/carts/cart-1/checkout/quote", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "user-7"))
	rr := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "user-7", seen.UserID)
	require.Equal(t, "SAVE10", seen.CouponCode)
	require.Contains(t, rr.Body.String(), `"totalIncludingTax":"49.55"`)
}

func TestQuoteDiscountEngineUnavailable(t *testing.T) {
	store, _, _ := newTestStore(t)
	h := &Handler{Svc: &Service{States: store, Pricing: pricerFunc(func(context.Context, pricing.CheckoutState) (pricing.Totals, error) {
		return pricing.Totals{}, pricing.ErrDiscountUnavailable
	})}}

	rr := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/carts/cart-1/checkout/quote", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "DISCOUNTS_UNAVAILABLE")
}
