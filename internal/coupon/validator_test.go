package coupon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

type stubFinder struct {
	coupons map[string]coupon.Coupon
	err     error
	lookups []string
}

func (s *stubFinder) FindByCode(_ context.Context, code string) (coupon.Coupon, error) {
	s.lookups = append(s.lookups, code)
	if s.err != nil {
		return coupon.Coupon{}, s.err
	}
	c, ok := s.coupons[code]
	if !ok {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	return c, nil
}

type memoryStates struct {
	states map[string]pricing.CheckoutState
	err    error
}

func (m *memoryStates) Update(_ context.Context, cartID string, mutate func(*pricing.CheckoutState)) (pricing.CheckoutState, error) {
	if m.err != nil {
		return pricing.CheckoutState{}, m.err
	}
	if m.states == nil {
		m.states = map[string]pricing.CheckoutState{}
	}
	st := m.states[cartID]
	mutate(&st)
	st.CartID = cartID
	m.states[cartID] = st
	return st, nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newValidator(f *stubFinder, states *memoryStates, bus *events.Bus) *coupon.Validator {
	return &coupon.Validator{
		Coupons: f,
		States:  states,
		Events:  bus,
		Now:     func() time.Time { return testNow },
		Logger:  zerolog.Nop(),
	}
}

func TestApplyStoresNormalisedCode(t *testing.T) {
	finder := &stubFinder{coupons: map[string]coupon.Coupon{"SAVE10": {ID: 1, DiscountID: 10, Code: "SAVE10"}}}
	states := &memoryStates{}
	bus := &events.Bus{}
	signals, cancel := bus.Subscribe("cart-1")
	defer cancel()

	c, err := newValidator(finder, states, bus).Apply(context.Background(), "cart-1", "  save10 ")
	require.NoError(t, err)
	require.Equal(t, "SAVE10", c.Code)
	require.Equal(t, []string{"SAVE10"}, finder.lookups)
	require.Equal(t, "SAVE10", states.states["cart-1"].CouponCode)
	require.Equal(t, events.TopicCouponChanged, (<-signals).Topic)
}

func TestApplyExpiredCouponClearsStoredCode(t *testing.T) {
	expired := testNow.Add(-24 * time.Hour)
	finder := &stubFinder{coupons: map[string]coupon.Coupon{"SPRING": {Code: "SPRING", ExpiresAt: &expired}}}
	states := &memoryStates{states: map[string]pricing.CheckoutState{"cart-1": {CartID: "cart-1", CouponCode: "WELCOME"}}}

	_, err := newValidator(finder, states, nil).Apply(context.Background(), "cart-1", "spring")
	rej, ok := coupon.IsRejection(err)
	require.True(t, ok)
	require.Equal(t, coupon.ReasonExpired, rej.Reason)
	require.Equal(t, "SPRING", rej.Code)
	require.Empty(t, states.states["cart-1"].CouponCode)
}

func TestApplyRejections(t *testing.T) {
	maxUses := 3
	finder := &stubFinder{coupons: map[string]coupon.Coupon{
		"FULL": {Code: "FULL", MaxUses: &maxUses, UsageCount: 3},
	}}
	states := &memoryStates{}
	v := newValidator(finder, states, nil)

	_, err := v.Apply(context.Background(), "cart-1", "   ")
	rej, ok := coupon.IsRejection(err)
	require.True(t, ok)
	require.Equal(t, coupon.ReasonEmpty, rej.Reason)
	require.Empty(t, finder.lookups, "blank codes never reach the store")

	_, err = v.Apply(context.Background(), "cart-1", "missing")
	rej, ok = coupon.IsRejection(err)
	require.True(t, ok)
	require.Equal(t, coupon.ReasonNotFound, rej.Reason)

	_, err = v.Apply(context.Background(), "cart-1", "full")
	rej, ok = coupon.IsRejection(err)
	require.True(t, ok)
	require.Equal(t, coupon.ReasonExhaustedUses, rej.Reason)
}

func TestApplyStoreErrorIsNotARejection(t *testing.T) {
	finder := &stubFinder{err: errors.New("connection reset")}
	states := &memoryStates{states: map[string]pricing.CheckoutState{"cart-1": {CouponCode: "OLD"}}}

	_, err := newValidator(finder, states, nil).Apply(context.Background(), "cart-1", "SAVE10")
	require.Error(t, err)
	_, ok := coupon.IsRejection(err)
	require.False(t, ok)
	require.Empty(t, states.states["cart-1"].CouponCode)
}

func TestRemoveClearsCode(t *testing.T) {
	states := &memoryStates{states: map[string]pricing.CheckoutState{"cart-1": {CouponCode: "SAVE10", ZoneCode: "EU"}}}
	bus := &events.Bus{}
	signals, cancel := bus.Subscribe("cart-1")
	defer cancel()

	require.NoError(t, newValidator(&stubFinder{}, states, bus).Remove(context.Background(), "cart-1"))
	require.Empty(t, states.states["cart-1"].CouponCode)
	require.Equal(t, "EU", states.states["cart-1"].ZoneCode)
	require.Equal(t, events.TopicCouponChanged, (<-signals).Topic)
}
