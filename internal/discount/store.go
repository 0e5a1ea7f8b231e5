package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

const activeRulesSQL = `SELECT id, name, kind, percent_bps, amount, min_subtotal,
       group_ids, partner_tiers, product_ids, requires_code, combinable, priority,
       starts_at, ends_at
FROM discounts
WHERE active
ORDER BY priority DESC, id`

// PgRuleStore loads discount rules from the discounts table.
type PgRuleStore struct {
	Pool *pgxpool.Pool
}

// Rules implements RuleSource.
func (s *PgRuleStore) Rules(ctx context.Context) ([]Rule, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("discount store not configured")
	}
	rows, err := s.Pool.Query(ctx, activeRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanRule)
}

func scanRule(row pgx.CollectableRow) (Rule, error) {
	var (
		r          Rule
		percentBps pgtype.Int4
		amount     int64
		minSub     int64
		startsAt   pgtype.Timestamptz
		endsAt     pgtype.Timestamptz
	)
	err := row.Scan(&r.ID, &r.Name, &r.Kind, &percentBps, &amount, &minSub,
		&r.GroupIDs, &r.PartnerTiers, &r.ProductIDs, &r.RequiresCode, &r.Combinable, &r.Priority,
		&startsAt, &endsAt)
	if err != nil {
		return Rule{}, err
	}
	if percentBps.Valid {
		r.PercentBps = percentBps.Int32
	}
	r.Amount = pricing.Money(amount)
	r.MinSubtotal = pricing.Money(minSub)
	if startsAt.Valid {
		t := startsAt.Time
		r.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time
		r.EndsAt = &t
	}
	return r, nil
}
