package pricing

import (
	"context"
	"time"
)

// CartLineItem is an immutable snapshot of a cart row at evaluation time.
type CartLineItem struct {
	ProductID string
	VariantID *string
	Quantity  int
	UnitPrice Money
}

// CartSnapshot holds the cart contents used for a single evaluation.
type CartSnapshot struct {
	Subtotal Money
	Items    []CartLineItem
}

// NewSnapshot builds a snapshot from raw rows. Rows with a non-positive
// quantity are dropped and negative unit prices are treated as zero.
func NewSnapshot(rows []CartLineItem) CartSnapshot {
	items := make([]CartLineItem, 0, len(rows))
	var subtotal Money
	for _, row := range rows {
		if row.Quantity <= 0 {
			continue
		}
		row.UnitPrice = nonNegative(row.UnitPrice)
		if row.VariantID != nil {
			v := *row.VariantID
			row.VariantID = &v
		}
		subtotal += Money(row.Quantity) * row.UnitPrice
		items = append(items, row)
	}
	return CartSnapshot{Subtotal: subtotal, Items: items}
}

// SnapshotProvider reads the current contents of a cart.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, cartID string) (CartSnapshot, error)
}

// ShippingOption is a user-selected shipping choice.
type ShippingOption struct {
	Courier string `json:"courier" validate:"max=64"`
	Service string `json:"service" validate:"max=64"`
	Price   Money  `json:"price" validate:"gte=0"`
	ETD     string `json:"etd,omitempty" validate:"max=32"`
}

// CheckoutState is the session-held state that influences pricing. It is
// passed explicitly into every computation.
type CheckoutState struct {
	CartID          string           `json:"cartId"`
	CouponCode      string           `json:"couponCode,omitempty"`
	ShippingOptions []ShippingOption `json:"shippingOptions,omitempty"`
	ZoneCode        string           `json:"zoneCode,omitempty"`
	// UserID is the authenticated caller and is never persisted.
	UserID string `json:"-"`
}

// CartContext is the cart portion of a PricingContext.
type CartContext struct {
	Subtotal Money
	Items    []CartLineItem
}

// PricingContext is the value handed to the discount engine. It is built
// fresh for every evaluation and never mutated afterwards.
type PricingContext struct {
	CurrencyCode string
	ChannelID    int64
	UserID       *string
	GroupIDs     []int64
	PartnerTier  *string
	Now          time.Time
	Code         string
	Cart         CartContext
}

// ShippingDiscount is the shipping-specific part of a discount result.
type ShippingDiscount struct {
	DiscountAmount Money
}

// DiscountResult is returned by a DiscountEngine.
type DiscountResult struct {
	DiscountTotalAmount Money
	Shipping            ShippingDiscount
	// CouponApplied reports that the context's coupon contributed to the
	// result. A stored code that has since expired leaves it false.
	CouponApplied bool
}

// Totals is the aggregated outcome of a pricing computation.
type Totals struct {
	Currency   string
	CouponCode string
	// CouponApplied is false when CouponCode is set but granted nothing.
	CouponApplied     bool
	Subtotal          Money
	Discount          Money
	ShippingAmount    Money
	ShippingDiscount  Money
	NetShipping       Money
	Tax               Money
	TotalExcludingTax Money
	TotalIncludingTax Money
	// Degraded lists the upstream sources that failed open during this computation.
	Degraded []string
}
