package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/events"
)

type captureNotifier struct {
	signals []events.Signal
	err     error
}

func (c *captureNotifier) Notify(_ context.Context, sig events.Signal) error {
	c.signals = append(c.signals, sig)
	return c.err
}

func fixedNow() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestEmitDeliversToSubscribersAndNotifiers(t *testing.T) {
	notifier := &captureNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{notifier}, Origin: "node-a", Now: fixedNow}

	ch, cancel := bus.Subscribe("cart-1")
	defer cancel()
	other, cancelOther := bus.Subscribe("cart-2")
	defer cancelOther()

	sig, err := bus.Emit(context.Background(), events.TopicCouponChanged, "cart-1")
	require.NoError(t, err)
	require.Equal(t, "node-a", sig.Origin)
	require.Equal(t, fixedNow(), sig.OccurredAt)

	select {
	case got := <-ch:
		require.Equal(t, events.TopicCouponChanged, got.Topic)
		require.Equal(t, "cart-1", got.CartID)
	case <-time.After(time.Second):
		t.Fatal("expected signal for subscriber")
	}
	select {
	case got := <-other:
		t.Fatalf("unexpected signal for other cart: %+v", got)
	default:
	}
	require.Len(t, notifier.signals, 1)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := &events.Bus{}
	_, err := bus.Emit(context.Background(), "", "cart-1")
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), "order.created", "cart-1")
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicCartChanged, " ")
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("redis down")}
	bus := &events.Bus{Notifiers: []events.Notifier{failing, nil}}

	sig, err := bus.Emit(context.Background(), events.TopicShippingChanged, "cart-1")
	require.Error(t, err)
	require.Equal(t, "cart-1", sig.CartID)
	require.Len(t, failing.signals, 1)
}

func TestSubscribeCancelReleases(t *testing.T) {
	bus := &events.Bus{}
	ch, cancel := bus.Subscribe("cart-1")
	require.Equal(t, 1, bus.Subscribers("cart-1"))
	cancel()
	cancel()
	require.Zero(t, bus.Subscribers("cart-1"))
	_, open := <-ch
	require.False(t, open)
}

func TestSlowSubscriberDoesNotBlockEmit(t *testing.T) {
	bus := &events.Bus{}
	_, cancel := bus.Subscribe("cart-1")
	defer cancel()
	for i := 0; i < 100; i++ {
		_, err := bus.Emit(context.Background(), events.TopicCartChanged, "cart-1")
		require.NoError(t, err)
	}
}
