package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrCartRequired is returned when no cart id is supplied.
var ErrCartRequired = errors.New("cart id is required")

// ShippingInput selects the destination zone and, optionally, a concrete
// shipping option quoted by a courier.
type ShippingInput struct {
	ZoneCode string                  `json:"zoneCode" validate:"omitempty,max=16"`
	Option   *pricing.ShippingOption `json:"option"`
}

// Pricer computes totals for a checkout state.
type Pricer interface {
	Compute(ctx context.Context, state pricing.CheckoutState) (pricing.Totals, error)
}

// Service owns the shipping selection of a checkout and the strict quote used
// to seed an order.
type Service struct {
	States *StateStore
	// Pricing should be an aggregator in strict mode so that quotes never
	// silently drop a discount the customer was shown.
	Pricing Pricer
	Events  *events.Bus
	Logger  zerolog.Logger
}

// SelectShipping stores the zone and option for cartID and emits
// shipping.changed.
func (s *Service) SelectShipping(ctx context.Context, cartID string, in ShippingInput) (pricing.CheckoutState, error) {
	if s == nil || s.States == nil {
		return pricing.CheckoutState{}, errors.New("checkout service not configured")
	}
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return pricing.CheckoutState{}, ErrCartRequired
	}
	state, err := s.States.Update(ctx, cartID, func(st *pricing.CheckoutState) {
		st.ZoneCode = strings.ToUpper(strings.TrimSpace(in.ZoneCode))
		st.ShippingOptions = nil
		if in.Option != nil {
			opt := *in.Option
			opt.Courier = strings.TrimSpace(opt.Courier)
			opt.Service = strings.TrimSpace(opt.Service)
			if opt.Price < 0 {
				opt.Price = 0
			}
			st.ShippingOptions = []pricing.ShippingOption{opt}
		}
	})
	if err != nil {
		return pricing.CheckoutState{}, fmt.Errorf("save shipping selection: %w", err)
	}
	s.emit(ctx, cartID)
	return state, nil
}

// Quote prices the checkout of cartID for userID. Discount engine failures
// surface as pricing.ErrDiscountUnavailable.
func (s *Service) Quote(ctx context.Context, cartID, userID string) (pricing.Totals, error) {
	if s == nil || s.States == nil || s.Pricing == nil {
		return pricing.Totals{}, errors.New("checkout service not configured")
	}
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return pricing.Totals{}, ErrCartRequired
	}
	state, err := s.States.Get(ctx, cartID)
	if err != nil {
		return pricing.Totals{}, err
	}
	state.UserID = userID
	return s.Pricing.Compute(ctx, state)
}

func (s *Service) emit(ctx context.Context, cartID string) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, events.TopicShippingChanged, cartID); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", cartID).Msg("shipping_signal_failed")
	}
}
