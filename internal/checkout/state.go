package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// DefaultStateTTL keeps an idle checkout session alive for a day.
const DefaultStateTTL = 24 * time.Hour

// ErrStateUnavailable is returned when the state store cannot be reached.
var ErrStateUnavailable = errors.New("checkout state unavailable")

// StateStore persists CheckoutState as JSON in Redis, one key per cart.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
	locker *lock.Locker
}

// NewStateStore constructs a store. A non-positive ttl uses DefaultStateTTL.
func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{client: client, ttl: ttl}
}

// WithLocker makes Update hold a per-cart lock across its read-modify-write.
func (s *StateStore) WithLocker(l lock.Locker) *StateStore {
	s.locker = &l
	return s
}

// Key returns the Redis key holding the state of cartID.
func Key(cartID string) string {
	return "toko:checkout:" + strings.TrimSpace(cartID)
}

// Get loads the state for cartID. A missing key yields an empty state bound
// to the cart.
func (s *StateStore) Get(ctx context.Context, cartID string) (pricing.CheckoutState, error) {
	state := pricing.CheckoutState{CartID: cartID}
	if s == nil || s.client == nil {
		return state, ErrStateUnavailable
	}
	data, err := s.client.Get(ctx, Key(cartID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state, nil
		}
		return state, fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return pricing.CheckoutState{CartID: cartID}, fmt.Errorf("decode checkout state: %w", err)
	}
	state.CartID = cartID
	return state, nil
}

// Save stores state and refreshes its TTL.
func (s *StateStore) Save(ctx context.Context, state pricing.CheckoutState) error {
	if s == nil || s.client == nil {
		return ErrStateUnavailable
	}
	if strings.TrimSpace(state.CartID) == "" {
		return errors.New("checkout state requires a cart id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, Key(state.CartID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}
	return nil
}

// Update loads, mutates and saves the state of cartID.
func (s *StateStore) Update(ctx context.Context, cartID string, mutate func(*pricing.CheckoutState)) (pricing.CheckoutState, error) {
	var state pricing.CheckoutState
	apply := func(ctx context.Context) error {
		current, err := s.Get(ctx, cartID)
		if err != nil {
			return err
		}
		mutate(&current)
		current.CartID = cartID
		state = current
		return s.Save(ctx, current)
	}
	if s != nil && s.locker != nil {
		err := s.locker.WithLock(ctx, Key(cartID)+":lock", 5*time.Second, apply)
		return state, err
	}
	err := apply(ctx)
	return state, err
}

// Clear removes all checkout state of cartID.
func (s *StateStore) Clear(ctx context.Context, cartID string) error {
	if s == nil || s.client == nil {
		return ErrStateUnavailable
	}
	if err := s.client.Del(ctx, Key(cartID)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}
	return nil
}
