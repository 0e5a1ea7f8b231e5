package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/toko-pricing/internal/obs"
)

// Signal announces that a pricing input of a cart changed. Receivers are
// expected to recompute totals; the signal carries no pricing data.
type Signal struct {
	Topic      string    `json:"topic"`
	CartID     string    `json:"cartId"`
	Origin     string    `json:"origin,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier reacts to emitted signals (e.g. cross-instance relays).
type Notifier interface {
	Notify(ctx context.Context, sig Signal) error
}

// subscriberBuffer bounds the per-subscriber queue. Signals are recompute
// triggers, so a full queue already guarantees a pending refresh.
const subscriberBuffer = 8

// Bus fans signals out to in-process subscribers and downstream notifiers.
type Bus struct {
	Notifiers []Notifier
	Origin    string
	Now       func() time.Time

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]chan Signal
}

// Emit dispatches a signal for the cart to local subscribers and all
// configured notifiers.
func (b *Bus) Emit(ctx context.Context, topic, cartID string) (Signal, error) {
	if b == nil {
		return Signal{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Signal{}, errors.New("events: topic is required")
	}
	if !knownTopic(topic) {
		return Signal{}, fmt.Errorf("events: unknown topic %q", topic)
	}
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return Signal{}, errors.New("events: cart id is required")
	}
	sig := Signal{Topic: topic, CartID: cartID, Origin: b.Origin, OccurredAt: b.now()}
	if obs.SignalsTotal != nil {
		obs.SignalsTotal.WithLabelValues(topic).Inc()
	}
	b.deliver(sig)

	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, sig); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return sig, joined
}

// Subscribe registers for signals of a single cart. The returned cancel
// function must be called to release the subscription; it closes the channel.
func (b *Bus) Subscribe(cartID string) (<-chan Signal, func()) {
	ch := make(chan Signal, subscriberBuffer)
	cartID = strings.TrimSpace(cartID)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[string]map[uint64]chan Signal)
	}
	b.nextID++
	id := b.nextID
	if b.subs[cartID] == nil {
		b.subs[cartID] = make(map[uint64]chan Signal)
	}
	b.subs[cartID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[cartID], id)
			if len(b.subs[cartID]) == 0 {
				delete(b.subs, cartID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports the number of active subscriptions for a cart.
func (b *Bus) Subscribers(cartID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[strings.TrimSpace(cartID)])
}

func (b *Bus) deliver(sig Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[sig.CartID] {
		select {
		case ch <- sig:
		default:
		}
	}
}

func (b *Bus) now() time.Time {
	if b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

func encodeSignal(sig Signal) ([]byte, error) {
	return json.Marshal(sig)
}

func decodeSignal(payload string) (Signal, error) {
	var sig Signal
	if strings.TrimSpace(payload) == "" {
		return sig, errors.New("payload is empty")
	}
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		return sig, err
	}
	if !knownTopic(sig.Topic) || strings.TrimSpace(sig.CartID) == "" {
		return sig, fmt.Errorf("malformed signal %q", payload)
	}
	return sig, nil
}
