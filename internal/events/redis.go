package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the Redis pub/sub channel used for pricing signals.
const DefaultChannel = "toko:pricing:signals"

// RedisRelay publishes signals to Redis and replays signals emitted by other
// instances onto the local bus.
type RedisRelay struct {
	Client  *redis.Client
	Channel string
	Origin  string
	Logger  zerolog.Logger
}

// Notify implements Notifier by publishing the signal.
func (r *RedisRelay) Notify(ctx context.Context, sig Signal) error {
	if r == nil || r.Client == nil {
		return nil
	}
	data, err := encodeSignal(sig)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	return r.Client.Publish(ctx, r.channel(), data).Err()
}

// Run subscribes to the channel and delivers remote signals to bus until ctx
// is cancelled. Signals originating from this instance are skipped because
// Emit already delivered them locally.
func (r *RedisRelay) Run(ctx context.Context, bus *Bus) error {
	if r == nil || r.Client == nil || bus == nil {
		return errors.New("events: relay not configured")
	}
	pubsub := r.Client.Subscribe(ctx, r.channel())
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("events: subscribe: %w", err)
	}
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			sig, err := decodeSignal(msg.Payload)
			if err != nil {
				r.Logger.Warn().Err(err).Msg("signal_relay_decode_failed")
				continue
			}
			if r.Origin != "" && sig.Origin == r.Origin {
				continue
			}
			bus.deliver(sig)
		}
	}
}

func (r *RedisRelay) channel() string {
	if r.Channel == "" {
		return DefaultChannel
	}
	return r.Channel
}
