package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

const (
	listItemsSQL = `SELECT product_id, variant_id, qty, unit_price
FROM cart_items
WHERE cart_id = $1
ORDER BY id`
	updateQtySQL  = `UPDATE cart_items SET qty = $3, updated_at = now() WHERE cart_id = $1 AND id = $2`
	deleteItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`
)

// PgStore reads and mutates cart rows in Postgres.
type PgStore struct {
	Pool *pgxpool.Pool
}

type itemRow struct {
	ProductID string
	VariantID pgtype.Text
	Qty       int32
	UnitPrice int64
}

// Snapshot implements pricing.SnapshotProvider. The snapshot is read fresh on
// every call.
func (s *PgStore) Snapshot(ctx context.Context, cartID string) (pricing.CartSnapshot, error) {
	if s == nil || s.Pool == nil {
		return pricing.CartSnapshot{}, errors.New("cart store not configured")
	}
	rows, err := s.Pool.Query(ctx, listItemsSQL, cartID)
	if err != nil {
		return pricing.CartSnapshot{}, fmt.Errorf("list cart items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (itemRow, error) {
		var it itemRow
		err := row.Scan(&it.ProductID, &it.VariantID, &it.Qty, &it.UnitPrice)
		return it, err
	})
	if err != nil {
		return pricing.CartSnapshot{}, fmt.Errorf("scan cart items: %w", err)
	}
	return snapshotFromRows(items), nil
}

// UpdateQty sets the quantity of an item and reports whether it existed.
func (s *PgStore) UpdateQty(ctx context.Context, cartID string, itemID int64, qty int) (bool, error) {
	if s == nil || s.Pool == nil {
		return false, errors.New("cart store not configured")
	}
	tag, err := s.Pool.Exec(ctx, updateQtySQL, cartID, itemID, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveItem deletes an item and reports whether it existed.
func (s *PgStore) RemoveItem(ctx context.Context, cartID string, itemID int64) (bool, error) {
	if s == nil || s.Pool == nil {
		return false, errors.New("cart store not configured")
	}
	tag, err := s.Pool.Exec(ctx, deleteItemSQL, cartID, itemID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func snapshotFromRows(rows []itemRow) pricing.CartSnapshot {
	items := make([]pricing.CartLineItem, 0, len(rows))
	for _, r := range rows {
		item := pricing.CartLineItem{
			ProductID: r.ProductID,
			Quantity:  int(r.Qty),
			UnitPrice: pricing.Money(r.UnitPrice),
		}
		if r.VariantID.Valid {
			v := r.VariantID.String
			item.VariantID = &v
		}
		items = append(items, item)
	}
	return pricing.NewSnapshot(items)
}
