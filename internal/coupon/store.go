package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by a Finder when no coupon matches the code.
var ErrNotFound = errors.New("coupon not found")

// Finder looks up coupons by code.
type Finder interface {
	FindByCode(ctx context.Context, code string) (Coupon, error)
}

// PgStore reads coupons from the discount_codes table.
type PgStore struct {
	Pool *pgxpool.Pool
}

const findByCodeSQL = `SELECT id, discount_id, code, expires_at, max_uses, usage_count
FROM discount_codes
WHERE upper(code) = $1
LIMIT 1`

// FindByCode returns the coupon whose code matches case-insensitively.
func (s *PgStore) FindByCode(ctx context.Context, code string) (Coupon, error) {
	if s == nil || s.Pool == nil {
		return Coupon{}, errors.New("coupon store not configured")
	}
	var (
		c         Coupon
		expiresAt pgtype.Timestamptz
		maxUses   pgtype.Int4
		usage     int32
	)
	err := s.Pool.QueryRow(ctx, findByCodeSQL, strings.ToUpper(strings.TrimSpace(code))).
		Scan(&c.ID, &c.DiscountID, &c.Code, &expiresAt, &maxUses, &usage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, fmt.Errorf("find coupon: %w", err)
	}
	c.Code = strings.ToUpper(c.Code)
	c.UsageCount = int(usage)
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	if maxUses.Valid {
		m := int(maxUses.Int32)
		c.MaxUses = &m
	}
	return c, nil
}
