package pricing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-pricing/internal/obs"
)

// Aggregator is the single entry point that turns a cart and checkout state
// into Totals. It is the only caller of the discount engine, the shipping
// resolver and the tax calculator.
type Aggregator struct {
	Snapshots SnapshotProvider
	Context   *ContextBuilder
	Discounts DiscountEngine
	Shipping  *ShippingResolver
	Tax       TaxCalculator
	// Strict surfaces discount engine failures as ErrDiscountUnavailable
	// instead of pricing without discounts.
	Strict bool
	Logger zerolog.Logger
}

// Compute reads the cart snapshot for state.CartID and prices it. An
// unreachable cart store prices an empty cart.
func (a *Aggregator) Compute(ctx context.Context, state CheckoutState) (Totals, error) {
	if a == nil {
		return Totals{}, errors.New("pricing: aggregator not configured")
	}
	var degraded []string
	snap := CartSnapshot{Items: []CartLineItem{}}
	if a.Snapshots != nil && strings.TrimSpace(state.CartID) != "" {
		s, err := a.Snapshots.Snapshot(ctx, state.CartID)
		if err != nil {
			a.Logger.Warn().Err(err).Str("cart_id", state.CartID).Msg("pricing_cart_failopen")
			degraded = append(degraded, SourceCart)
		} else {
			snap = s
		}
	}
	return a.compute(ctx, snap, state, degraded)
}

// ComputeSnapshot prices an already loaded snapshot.
func (a *Aggregator) ComputeSnapshot(ctx context.Context, snap CartSnapshot, state CheckoutState) (Totals, error) {
	if a == nil {
		return Totals{}, errors.New("pricing: aggregator not configured")
	}
	return a.compute(ctx, snap, state, nil)
}

func (a *Aggregator) compute(ctx context.Context, snap CartSnapshot, state CheckoutState, degraded []string) (Totals, error) {
	start := time.Now()
	ctx, span := otel.Tracer("pricing").Start(ctx, "pricing.compute")
	defer span.End()

	builder := a.Context
	if builder == nil {
		builder = &ContextBuilder{Logger: a.Logger}
	}

	subtotal := nonNegative(snap.Subtotal)
	pc := builder.build(ctx, snap, state, &degraded)

	result, err := evaluateDiscount(ctx, a.Discounts, pc)
	if err != nil {
		if a.Strict {
			span.RecordError(err)
			span.SetStatus(codes.Error, "discount engine unavailable")
			observeCompute("error", start, nil)
			return Totals{}, err
		}
		a.Logger.Warn().Err(err).Str("cart_id", state.CartID).Msg("pricing_discount_failopen")
		degraded = append(degraded, SourceDiscount)
		result = DiscountResult{}
	}

	discount := clamp(result.DiscountTotalAmount, 0, subtotal)
	if discount != result.DiscountTotalAmount {
		a.Logger.Debug().Int64("subtotal", subtotal).Int64("discount", result.DiscountTotalAmount).Msg("pricing_discount_clamped")
	}
	netSubtotal := nonNegative(subtotal - discount)

	shippingAmount := a.Shipping.Resolve(state, state.ZoneCode, subtotal)
	shippingDiscount := clamp(result.Shipping.DiscountAmount, 0, shippingAmount)
	netShipping := nonNegative(shippingAmount - shippingDiscount)

	tax := a.Tax.Compute(netSubtotal, state.ZoneCode)

	totals := Totals{
		Currency:          pc.CurrencyCode,
		CouponCode:        pc.Code,
		CouponApplied:     pc.Code != "" && result.CouponApplied,
		Subtotal:          subtotal,
		Discount:          discount,
		ShippingAmount:    shippingAmount,
		ShippingDiscount:  shippingDiscount,
		NetShipping:       netShipping,
		Tax:               tax,
		TotalExcludingTax: netSubtotal + netShipping,
		TotalIncludingTax: netSubtotal + netShipping + tax,
		Degraded:          degraded,
	}

	span.SetAttributes(
		attribute.String("pricing.cart_id", state.CartID),
		attribute.Int64("pricing.subtotal", totals.Subtotal),
		attribute.Int64("pricing.discount", totals.Discount),
		attribute.Int64("pricing.total", totals.TotalIncludingTax),
		attribute.StringSlice("pricing.degraded", degraded),
	)
	outcome := "ok"
	if len(degraded) > 0 {
		outcome = "degraded"
	}
	observeCompute(outcome, start, degraded)
	return totals, nil
}

func observeCompute(result string, start time.Time, degraded []string) {
	if obs.PricingComputeTotal != nil {
		obs.PricingComputeTotal.WithLabelValues(result).Inc()
	}
	if obs.PricingComputeLatency != nil {
		obs.PricingComputeLatency.Observe(obs.DurationMillis(time.Since(start)))
	}
	if obs.PricingFailOpenTotal != nil {
		for _, source := range degraded {
			obs.PricingFailOpenTotal.WithLabelValues(source).Inc()
		}
	}
}
