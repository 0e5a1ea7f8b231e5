package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

const (
	groupsSQL = `SELECT group_id FROM customer_group_members WHERE user_id = $1 ORDER BY group_id`
	tierSQL   = `SELECT pt.name
FROM customer_partner_tiers cpt
JOIN partner_tiers pt ON pt.id = cpt.tier_id
WHERE cpt.user_id = $1
LIMIT 1`
)

// PgSegments resolves customer groups and partner tiers from Postgres.
type PgSegments struct {
	Pool *pgxpool.Pool
}

// Segment implements pricing.SegmentLookup.
func (s *PgSegments) Segment(ctx context.Context, userID string) (pricing.Segment, error) {
	if s == nil || s.Pool == nil {
		return pricing.Segment{}, errors.New("segment store not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return pricing.Segment{GroupIDs: []int64{}}, nil
	}
	rows, err := s.Pool.Query(ctx, groupsSQL, userID)
	if err != nil {
		return pricing.Segment{}, fmt.Errorf("list groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return pricing.Segment{}, fmt.Errorf("scan groups: %w", err)
	}
	seg := pricing.Segment{GroupIDs: groups}

	var tier string
	err = s.Pool.QueryRow(ctx, tierSQL, userID).Scan(&tier)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return pricing.Segment{}, fmt.Errorf("partner tier: %w", err)
	default:
		seg.PartnerTier = &tier
	}
	return seg, nil
}
