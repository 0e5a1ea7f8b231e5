package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// StateUpdater mutates the checkout state of a cart.
type StateUpdater interface {
	Update(ctx context.Context, cartID string, mutate func(*pricing.CheckoutState)) (pricing.CheckoutState, error)
}

// Validator gates writes of coupon codes into checkout state. Only codes that
// pass validation are ever stored; a rejected attempt clears any previous code.
type Validator struct {
	Coupons Finder
	States  StateUpdater
	Events  *events.Bus
	Now     func() time.Time
	Logger  zerolog.Logger
}

// Apply validates code and, on success, stores it for cartID.
func (v *Validator) Apply(ctx context.Context, cartID, code string) (Coupon, error) {
	if v == nil || v.Coupons == nil || v.States == nil {
		return Coupon{}, errors.New("coupon validator not configured")
	}
	normalized := pricing.NormalizeCode(code)
	if normalized == "" {
		return Coupon{}, v.reject(ctx, cartID, &Rejection{Reason: ReasonEmpty})
	}

	c, err := v.Coupons.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Coupon{}, v.reject(ctx, cartID, &Rejection{Code: normalized, Reason: ReasonNotFound})
		}
		v.observe("error")
		v.clear(ctx, cartID)
		return Coupon{}, fmt.Errorf("lookup coupon: %w", err)
	}
	if err := Check(c, v.now()); err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			rej.Code = normalized
			return Coupon{}, v.reject(ctx, cartID, rej)
		}
		return Coupon{}, err
	}

	c.Code = normalized
	if _, err := v.States.Update(ctx, cartID, func(st *pricing.CheckoutState) {
		st.CouponCode = normalized
	}); err != nil {
		v.observe("error")
		return Coupon{}, fmt.Errorf("store coupon: %w", err)
	}
	v.observe("accepted")
	v.Logger.Info().Str("cart_id", cartID).Str("code", normalized).Msg("coupon_applied")
	v.emit(ctx, cartID)
	return c, nil
}

// Remove clears any coupon stored for cartID.
func (v *Validator) Remove(ctx context.Context, cartID string) error {
	if v == nil || v.States == nil {
		return errors.New("coupon validator not configured")
	}
	if _, err := v.States.Update(ctx, cartID, func(st *pricing.CheckoutState) {
		st.CouponCode = ""
	}); err != nil {
		return fmt.Errorf("clear coupon: %w", err)
	}
	v.observe("removed")
	v.emit(ctx, cartID)
	return nil
}

func (v *Validator) reject(ctx context.Context, cartID string, rej *Rejection) error {
	v.observe(string(rej.Reason))
	v.Logger.Info().Str("cart_id", cartID).Str("code", rej.Code).Str("reason", string(rej.Reason)).Msg("coupon_rejected")
	v.clear(ctx, cartID)
	return rej
}

func (v *Validator) clear(ctx context.Context, cartID string) {
	if _, err := v.States.Update(ctx, cartID, func(st *pricing.CheckoutState) {
		st.CouponCode = ""
	}); err != nil {
		v.Logger.Warn().Err(err).Str("cart_id", cartID).Msg("coupon_clear_failed")
	}
	v.emit(ctx, cartID)
}

func (v *Validator) emit(ctx context.Context, cartID string) {
	if v.Events == nil {
		return
	}
	if _, err := v.Events.Emit(ctx, events.TopicCouponChanged, cartID); err != nil {
		v.Logger.Warn().Err(err).Str("cart_id", cartID).Msg("coupon_signal_failed")
	}
}

func (v *Validator) observe(result string) {
	if obs.CouponApplyTotal != nil {
		obs.CouponApplyTotal.WithLabelValues(result).Inc()
	}
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

