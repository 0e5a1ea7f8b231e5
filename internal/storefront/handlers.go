package storefront

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-pricing/internal/cart"
	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// Handler exposes pricing views and coupon actions for a cart.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// Pricing handles GET /carts/{id}/pricing.
func (h *Handler) Pricing(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "storefront service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	totals, err := h.Svc.Totals(r.Context(), cart.IDFromRequest(r), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, pricing.NewView(totals))
}

// Fragment handles GET /carts/{id}/fragments/{name}.
func (h *Handler) Fragment(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "storefront service not configured", nil)
		return
	}
	name := strings.ToLower(chi.URLParam(r, "name"))
	if _, ok := Render(name, pricing.Totals{}); !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown fragment", map[string]any{"name": name})
		return
	}
	userID, _ := common.UserID(r.Context())
	totals, err := h.Svc.Totals(r.Context(), cart.IDFromRequest(r), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	frag, _ := Render(name, totals)
	common.Data(w, http.StatusOK, frag)
}

// ApplyCoupon handles POST /carts/{id}/coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "storefront service not configured", nil)
		return
	}
	var payload couponRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	// Blank codes go through the coupon validator, which reports them as empty.
	if strings.TrimSpace(payload.Code) != "" {
		if err := h.validator().Struct(payload); err != nil {
			h.Svc.DiscardCoupon(r.Context(), cart.IDFromRequest(r))
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid coupon code", common.ValidationDetails(err))
			return
		}
	}
	totals, err := h.Svc.ApplyCoupon(r.Context(), cart.IDFromRequest(r), userID, payload.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, pricing.NewView(totals))
}

// RemoveCoupon handles DELETE /carts/{id}/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "storefront service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	totals, err := h.Svc.RemoveCoupon(r.Context(), cart.IDFromRequest(r), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, pricing.NewView(totals))
}

// CouponRateKey keys coupon attempts by cart.
func CouponRateKey(r *http.Request) string {
	id := cart.IDFromRequest(r)
	if id == "" {
		return ""
	}
	return "cart:" + id
}

var defaultValidate = validator.New(validator.WithRequiredStructEnabled())

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return defaultValidate
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if rej, ok := coupon.IsRejection(err); ok {
		common.WriteError(w, rej.AppError())
		return
	}
	switch {
	case errors.Is(err, pricing.ErrDiscountUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "DISCOUNTS_UNAVAILABLE", "discounts cannot be evaluated right now", nil)
	default:
		common.WriteError(w, err)
	}
}
