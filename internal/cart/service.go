package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/events"
)

// ErrNotFound indicates the requested cart item could not be located.
var ErrNotFound = errors.New("cart item not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ItemStore mutates cart line items.
type ItemStore interface {
	UpdateQty(ctx context.Context, cartID string, itemID int64, qty int) (bool, error)
	RemoveItem(ctx context.Context, cartID string, itemID int64) (bool, error)
}

// Service applies cart mutations and announces them with cart.changed so
// that displayed totals are recomputed.
type Service struct {
	Store  ItemStore
	Events *events.Bus
	Logger zerolog.Logger
}

// UpdateQty changes the quantity of an item. A non-positive quantity removes it.
func (s *Service) UpdateQty(ctx context.Context, cartID string, itemID int64, qty int) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	if qty <= 0 {
		return s.RemoveItem(ctx, cartID, itemID)
	}
	if itemID <= 0 {
		return fmt.Errorf("item id must be positive: %w", ErrInvalidInput)
	}
	found, err := s.Store.UpdateQty(ctx, cartID, itemID, qty)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	s.changed(ctx, cartID)
	return nil
}

// RemoveItem deletes a cart item.
func (s *Service) RemoveItem(ctx context.Context, cartID string, itemID int64) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	if itemID <= 0 {
		return fmt.Errorf("item id must be positive: %w", ErrInvalidInput)
	}
	found, err := s.Store.RemoveItem(ctx, cartID, itemID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	s.changed(ctx, cartID)
	return nil
}

func (s *Service) changed(ctx context.Context, cartID string) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, events.TopicCartChanged, cartID); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", cartID).Msg("cart_signal_failed")
	}
}

// ParseID validates a cart identifier and returns its canonical form.
func ParseID(value string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("parse cart id: %w", ErrInvalidInput)
	}
	return parsed.String(), nil
}
