package pricing

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sources reported in Totals.Degraded when a lookup fails open.
const (
	SourceCart     = "cart"
	SourceCurrency = "currency"
	SourceSegment  = "segment"
	SourceDiscount = "discount"
)

// CurrencyResolver returns the active currency for a sales channel.
type CurrencyResolver interface {
	ActiveCurrency(ctx context.Context, channelID int64) (string, error)
}

// StaticCurrency always resolves to the same currency code.
type StaticCurrency string

// ActiveCurrency implements CurrencyResolver.
func (c StaticCurrency) ActiveCurrency(context.Context, int64) (string, error) {
	return string(c), nil
}

// Segment describes the customer segmentation relevant to discounts.
type Segment struct {
	GroupIDs    []int64
	PartnerTier *string
}

// SegmentLookup resolves group memberships and partner tier for a user.
type SegmentLookup interface {
	Segment(ctx context.Context, userID string) (Segment, error)
}

// ContextBuilder assembles PricingContext values.
type ContextBuilder struct {
	Currency        CurrencyResolver
	Segments        SegmentLookup
	DefaultCurrency string
	ChannelID       int64
	Now             func() time.Time
	Logger          zerolog.Logger
}

// Build assembles the evaluation context for the snapshot and checkout state.
// Auxiliary lookups never fail the build: they degrade to neutral defaults.
func (b *ContextBuilder) Build(ctx context.Context, snap CartSnapshot, state CheckoutState) PricingContext {
	return b.build(ctx, snap, state, nil)
}

func (b *ContextBuilder) build(ctx context.Context, snap CartSnapshot, state CheckoutState, degraded *[]string) PricingContext {
	pc := PricingContext{
		CurrencyCode: strings.ToUpper(strings.TrimSpace(b.DefaultCurrency)),
		ChannelID:    b.ChannelID,
		GroupIDs:     []int64{},
		Now:          b.now(),
		Code:         NormalizeCode(state.CouponCode),
		Cart: CartContext{
			Subtotal: snap.Subtotal,
			Items:    slices.Clone(snap.Items),
		},
	}
	if pc.Cart.Items == nil {
		pc.Cart.Items = []CartLineItem{}
	}

	if b.Currency != nil {
		code, err := b.Currency.ActiveCurrency(ctx, b.ChannelID)
		switch {
		case err != nil:
			b.Logger.Warn().Err(err).Int64("channel_id", b.ChannelID).Msg("pricing_currency_failopen")
			markDegraded(degraded, SourceCurrency)
		case strings.TrimSpace(code) != "":
			pc.CurrencyCode = strings.ToUpper(strings.TrimSpace(code))
		}
	}

	userID := strings.TrimSpace(state.UserID)
	if userID == "" {
		return pc
	}
	uid := userID
	pc.UserID = &uid
	if b.Segments == nil {
		return pc
	}
	seg, err := b.Segments.Segment(ctx, userID)
	if err != nil {
		b.Logger.Warn().Err(err).Str("user_id", userID).Msg("pricing_segment_failopen")
		markDegraded(degraded, SourceSegment)
		return pc
	}
	pc.GroupIDs = normalizeGroups(seg.GroupIDs)
	if seg.PartnerTier != nil {
		if tier := strings.TrimSpace(*seg.PartnerTier); tier != "" {
			pc.PartnerTier = &tier
		}
	}
	return pc
}

func (b *ContextBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeGroups(ids []int64) []int64 {
	out := slices.Clone(ids)
	if out == nil {
		return []int64{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func markDegraded(degraded *[]string, source string) {
	if degraded == nil {
		return
	}
	*degraded = append(*degraded, source)
}
