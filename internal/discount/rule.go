package discount

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Kinds of discount rules.
const (
	KindPercent      = "percent"
	KindFixed        = "fixed"
	KindFreeShipping = "free_shipping"
)

// Rule captures the runtime constraints of a discount.
type Rule struct {
	ID   int64
	Name string
	Kind string
	// PercentBps is the percentage in basis points for percent rules.
	PercentBps int32
	// Amount is the fixed amount for fixed rules, or the cap on the shipping
	// discount for free shipping rules (zero means uncapped).
	Amount       pricing.Money
	MinSubtotal  pricing.Money
	GroupIDs     []int64
	PartnerTiers []string
	ProductIDs   []string
	// RequiresCode restricts the rule to contexts carrying a coupon that
	// points at it.
	RequiresCode bool
	Combinable   bool
	Priority     int
	StartsAt     *time.Time
	EndsAt       *time.Time
}

// Active reports whether the rule's window contains now.
func (r Rule) Active(now time.Time) bool {
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return false
	}
	return true
}

// Matches reports whether the rule applies to the customer and cart in pc.
// codeDiscountID is the discount referenced by the context's coupon, or zero.
func (r Rule) Matches(pc pricing.PricingContext, codeDiscountID int64) bool {
	if r.RequiresCode && (codeDiscountID == 0 || codeDiscountID != r.ID) {
		return false
	}
	if !r.Active(pc.Now) {
		return false
	}
	if pc.Cart.Subtotal < r.MinSubtotal {
		return false
	}
	if len(r.GroupIDs) > 0 && !slices.ContainsFunc(r.GroupIDs, func(id int64) bool {
		return slices.Contains(pc.GroupIDs, id)
	}) {
		return false
	}
	if len(r.PartnerTiers) > 0 {
		if pc.PartnerTier == nil {
			return false
		}
		if !slices.ContainsFunc(r.PartnerTiers, func(t string) bool {
			return strings.EqualFold(t, *pc.PartnerTier)
		}) {
			return false
		}
	}
	return true
}

// EligibleSubtotal is the part of the cart the rule discounts.
func EligibleSubtotal(items []pricing.CartLineItem, r Rule) pricing.Money {
	var total pricing.Money
	for _, it := range items {
		line := pricing.Money(it.Quantity) * it.UnitPrice
		if line <= 0 {
			continue
		}
		if len(r.ProductIDs) == 0 || slices.Contains(r.ProductIDs, it.ProductID) {
			total += line
		}
	}
	return total
}

// Compute returns the merchandise and shipping discount of the rule for the
// eligible subtotal.
func Compute(eligible pricing.Money, r Rule) pricing.DiscountResult {
	switch strings.ToLower(r.Kind) {
	case KindPercent:
		if r.PercentBps <= 0 || eligible <= 0 {
			return pricing.DiscountResult{}
		}
		rate := decimal.New(int64(r.PercentBps), -4)
		return pricing.DiscountResult{DiscountTotalAmount: min(pricing.ApplyRate(eligible, rate), eligible)}
	case KindFixed:
		if eligible <= 0 || r.Amount <= 0 {
			return pricing.DiscountResult{}
		}
		return pricing.DiscountResult{DiscountTotalAmount: min(r.Amount, eligible)}
	case KindFreeShipping:
		limit := r.Amount
		if limit <= 0 {
			limit = math.MaxInt64
		}
		return pricing.DiscountResult{Shipping: pricing.ShippingDiscount{DiscountAmount: limit}}
	default:
		return pricing.DiscountResult{}
	}
}
