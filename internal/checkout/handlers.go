package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// SelectShipping handles PUT /carts/{id}/shipping.
func (h *Handler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload ShippingInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validator().Struct(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid shipping selection", common.ValidationDetails(err))
		return
	}
	state, err := h.Svc.SelectShipping(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, state)
}

// Quote handles GET /carts/{id}/checkout/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	totals, err := h.Svc.Quote(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, pricing.NewView(totals))
}

var defaultValidate = validator.New(validator.WithRequiredStructEnabled())

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return defaultValidate
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
	case errors.Is(err, ErrCartRequired):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, pricing.ErrDiscountUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "DISCOUNTS_UNAVAILABLE", "discounts cannot be evaluated right now", nil)
	case errors.Is(err, ErrStateUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "STATE_UNAVAILABLE", "checkout state unavailable", nil)
	default:
		common.WriteError(w, err)
	}
}
