package storefront

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// StateReader loads the checkout state of a cart.
type StateReader interface {
	Get(ctx context.Context, cartID string) (pricing.CheckoutState, error)
}

// Pricer computes totals for a checkout state.
type Pricer interface {
	Compute(ctx context.Context, state pricing.CheckoutState) (pricing.Totals, error)
}

// CouponApplier validates and stores coupon codes.
type CouponApplier interface {
	Apply(ctx context.Context, cartID, code string) (coupon.Coupon, error)
	Remove(ctx context.Context, cartID string) error
}

// Service serves the storefront's read views of a cart's price. It never
// caches totals; every call recomputes from the cart and checkout state.
type Service struct {
	States  StateReader
	Pricing Pricer
	Coupons CouponApplier
	Logger  zerolog.Logger
}

// Totals prices cartID for userID. A checkout state that cannot be read is
// treated as empty.
func (s *Service) Totals(ctx context.Context, cartID, userID string) (pricing.Totals, error) {
	if s == nil || s.Pricing == nil {
		return pricing.Totals{}, errors.New("storefront service not configured")
	}
	state := pricing.CheckoutState{CartID: cartID}
	if s.States != nil {
		st, err := s.States.Get(ctx, cartID)
		if err != nil {
			s.Logger.Warn().Err(err).Str("cart_id", cartID).Msg("pricing_state_failopen")
		} else {
			state = st
		}
	}
	state.CartID = cartID
	state.UserID = userID
	return s.Pricing.Compute(ctx, state)
}

// ApplyCoupon validates code for cartID and returns the refreshed totals.
func (s *Service) ApplyCoupon(ctx context.Context, cartID, userID, code string) (pricing.Totals, error) {
	if s == nil || s.Coupons == nil {
		return pricing.Totals{}, errors.New("storefront service not configured")
	}
	if _, err := s.Coupons.Apply(ctx, cartID, code); err != nil {
		return pricing.Totals{}, err
	}
	return s.Totals(ctx, cartID, userID)
}

// RemoveCoupon clears the coupon of cartID and returns the refreshed totals.
func (s *Service) RemoveCoupon(ctx context.Context, cartID, userID string) (pricing.Totals, error) {
	if s == nil || s.Coupons == nil {
		return pricing.Totals{}, errors.New("storefront service not configured")
	}
	if err := s.Coupons.Remove(ctx, cartID); err != nil {
		return pricing.Totals{}, fmt.Errorf("remove coupon: %w", err)
	}
	return s.Totals(ctx, cartID, userID)
}

// DiscardCoupon clears the stored coupon after a submission that never
// reached validation, so a rejected attempt leaves no code behind.
func (s *Service) DiscardCoupon(ctx context.Context, cartID string) {
	if s == nil || s.Coupons == nil {
		return
	}
	if err := s.Coupons.Remove(ctx, cartID); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", cartID).Msg("coupon_discard_failed")
	}
}
