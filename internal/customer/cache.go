package customer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// CachedSegments memoises segment lookups in Redis for a short TTL. Cache
// failures fall through to the underlying lookup.
type CachedSegments struct {
	Next   pricing.SegmentLookup
	Client *redis.Client
	TTL    time.Duration
	Logger zerolog.Logger
}

type cachedSegment struct {
	GroupIDs    []int64 `json:"groupIds"`
	PartnerTier *string `json:"partnerTier,omitempty"`
}

func segmentKey(userID string) string {
	return "toko:segment:" + userID
}

// Segment implements pricing.SegmentLookup.
func (c *CachedSegments) Segment(ctx context.Context, userID string) (pricing.Segment, error) {
	if c == nil || c.Next == nil {
		return pricing.Segment{}, errors.New("segment lookup not configured")
	}
	userID = strings.TrimSpace(userID)
	if c.Client == nil || c.TTL <= 0 || userID == "" {
		return c.Next.Segment(ctx, userID)
	}
	key := segmentKey(userID)
	data, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedSegment
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			return pricing.Segment{GroupIDs: cached.GroupIDs, PartnerTier: cached.PartnerTier}, nil
		}
	case !errors.Is(err, redis.Nil):
		c.Logger.Debug().Err(err).Str("user_id", userID).Msg("segment_cache_get_failed")
	}

	seg, err := c.Next.Segment(ctx, userID)
	if err != nil {
		return seg, err
	}
	payload, err := json.Marshal(cachedSegment{GroupIDs: seg.GroupIDs, PartnerTier: seg.PartnerTier})
	if err == nil {
		if setErr := c.Client.Set(ctx, key, payload, c.TTL).Err(); setErr != nil {
			c.Logger.Debug().Err(setErr).Str("user_id", userID).Msg("segment_cache_set_failed")
		}
	}
	return seg, nil
}

// Invalidate drops the cached segment of userID.
func (c *CachedSegments) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Del(ctx, segmentKey(strings.TrimSpace(userID))).Err()
}
