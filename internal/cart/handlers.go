package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-pricing/internal/common"
)

type cartIDKey struct{}

// RequireID validates the {id} route parameter as a cart identifier and
// stores the canonical form on the request context.
func RequireID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := ParseID(chi.URLParam(r, "id"))
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), cartIDKey{}, id)))
	})
}

// IDFromRequest returns the cart id validated by RequireID, falling back to
// the raw route parameter.
func IDFromRequest(r *http.Request) string {
	if id, ok := r.Context().Value(cartIDKey{}).(string); ok {
		return id
	}
	return chi.URLParam(r, "id")
}

// Handler wires cart item mutations to HTTP.
type Handler struct {
	Svc *Service
}

// UpdateItem handles PATCH /carts/{id}/items/{itemId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	var payload struct {
		Qty *int `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Qty == nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "qty is required", nil)
		return
	}
	if err := h.Svc.UpdateQty(r.Context(), IDFromRequest(r), itemID, *payload.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveItem handles DELETE /carts/{id}/items/{itemId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	if err := h.Svc.RemoveItem(r.Context(), IDFromRequest(r), itemID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
