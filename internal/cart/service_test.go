package cart

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

const testCartID = "5f0c7f5e-9a43-4a4a-9d1e-2b8f3c1a7e11"

type memoryItems struct {
	qty map[int64]int
	err error
}

func (m *memoryItems) UpdateQty(_ context.Context, _ string, itemID int64, qty int) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.qty[itemID]; !ok {
		return false, nil
	}
	m.qty[itemID] = qty
	return true, nil
}

func (m *memoryItems) RemoveItem(_ context.Context, _ string, itemID int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.qty[itemID]; !ok {
		return false, nil
	}
	delete(m.qty, itemID)
	return true, nil
}

func TestSnapshotFromRows(t *testing.T) {
	snap := snapshotFromRows([]itemRow{
		{ProductID: "p-1", Qty: 2, UnitPrice: 1999},
		{ProductID: "p-2", VariantID: pgtype.Text{String: "xl", Valid: true}, Qty: 1, UnitPrice: 500},
		{ProductID: "p-3", Qty: 0, UnitPrice: 100},
	})
	require.Equal(t, pricing.Money(4498), snap.Subtotal)
	require.Len(t, snap.Items, 2)
	require.Nil(t, snap.Items[0].VariantID)
	require.Equal(t, "xl", *snap.Items[1].VariantID)
}

func TestUpdateQtyEmitsCartChanged(t *testing.T) {
	store := &memoryItems{qty: map[int64]int{7: 1}}
	bus := &events.Bus{}
	signals, cancel := bus.Subscribe(testCartID)
	defer cancel()
	svc := &Service{Store: store, Events: bus, Logger: zerolog.Nop()}

	require.NoError(t, svc.UpdateQty(context.Background(), testCartID, 7, 3))
	require.Equal(t, 3, store.qty[7])
	require.Equal(t, events.TopicCartChanged, (<-signals).Topic)

	require.NoError(t, svc.UpdateQty(context.Background(), testCartID, 7, 0))
	_, exists := store.qty[7]
	require.False(t, exists)
}

func TestUpdateQtyErrors(t *testing.T) {
	svc := &Service{Store: &memoryItems{qty: map[int64]int{}}}
	require.ErrorIs(t, svc.UpdateQty(context.Background(), testCartID, 1, 2), ErrNotFound)
	require.ErrorIs(t, svc.RemoveItem(context.Background(), testCartID, -1), ErrInvalidInput)

	broken := &Service{Store: &memoryItems{err: errors.New("db down")}}
	require.Error(t, broken.UpdateQty(context.Background(), testCartID, 1, 2))
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 5F0C7F5E-9A43-4A4A-9D1E-2B8F3C1A7E11 ")
	require.NoError(t, err)
	require.Equal(t, testCartID, id)

	_, err = ParseID("not-a-cart")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestHandlersRoutes(t *testing.T) {
	store := &memoryItems{qty: map[int64]int{7: 1}}
	h := &Handler{Svc: &Service{Store: store}}
	r := chi.NewRouter()
	r.Route("/carts/{id}", func(r chi.Router) {
		r.Use(RequireID)
		r.Patch("/items/{itemId}", h.UpdateItem)
		r.Delete("/items/{itemId}", h.RemoveItem)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/carts/"+testCartID+"/items/7", strings.NewReader(`{"qty":4}`)))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 4, store.qty[7])

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/carts/bogus/items/7", strings.NewReader(`{"qty":4}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/carts/"+testCartID+"/items/99", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/carts/"+testCartID+"/items/7", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, store.qty)
}
