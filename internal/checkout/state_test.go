package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

func newTestStore(t *testing.T) (*StateStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStateStore(client, time.Hour), mr, client
}

func TestStateStoreRoundTrip(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	empty, err := store.Get(ctx, "cart-1")
	require.NoError(t, err)
	require.Equal(t, pricing.CheckoutState{CartID: "cart-1"}, empty)

	state := pricing.CheckoutState{
		CartID:          "cart-1",
		CouponCode:      "SAVE10",
		ZoneCode:        "EU",
		ShippingOptions: []pricing.ShippingOption{{Courier: "dhl", Service: "express", Price: 1299}},
		UserID:          "user-1",
	}
	require.NoError(t, store.Save(ctx, state))
	require.True(t, mr.Exists("toko:checkout:cart-1"))
	require.Equal(t, time.Hour, mr.TTL("toko:checkout:cart-1"))

	got, err := store.Get(ctx, "cart-1")
	require.NoError(t, err)
	require.Equal(t, "SAVE10", got.CouponCode)
	require.Equal(t, "EU", got.ZoneCode)
	require.Len(t, got.ShippingOptions, 1)
	require.Empty(t, got.UserID, "user id is never persisted")

	require.NoError(t, store.Clear(ctx, "cart-1"))
	require.False(t, mr.Exists("toko:checkout:cart-1"))
}

func TestStateStoreUpdateWithLock(t *testing.T) {
	store, mr, client := newTestStore(t)
	store.WithLocker(lock.Locker{R: client, RetryBackoff: time.Millisecond})
	ctx := context.Background()

	state, err := store.Update(ctx, "cart-2", func(st *pricing.CheckoutState) {
		st.CouponCode = "WELCOME"
	})
	require.NoError(t, err)
	require.Equal(t, "cart-2", state.CartID)
	require.Equal(t, "WELCOME", state.CouponCode)
	require.False(t, mr.Exists("toko:checkout:cart-2:lock"))

	got, err := store.Get(ctx, "cart-2")
	require.NoError(t, err)
	require.Equal(t, "WELCOME", got.CouponCode)
}

func TestStateStoreUnavailable(t *testing.T) {
	store, mr, _ := newTestStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "cart-1")
	require.ErrorIs(t, err, ErrStateUnavailable)
	require.ErrorIs(t, store.Save(context.Background(), pricing.CheckoutState{CartID: "cart-1"}), ErrStateUnavailable)
}

func TestStateStoreRejectsCorruptPayload(t *testing.T) {
	store, mr, _ := newTestStore(t)
	require.NoError(t, mr.Set("toko:checkout:cart-1", "{not json"))
	_, err := store.Get(context.Background(), "cart-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrStateUnavailable)
}
