package discount

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// RuleSource loads the currently configured discount rules.
type RuleSource interface {
	Rules(ctx context.Context) ([]Rule, error)
}

// RuleEngine evaluates discount rules locally. Rules are loaded from the
// source and kept for CacheTTL.
type RuleEngine struct {
	Source   RuleSource
	Coupons  coupon.Finder
	CacheTTL time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger

	mu       sync.Mutex
	cached   []Rule
	loadedAt time.Time
}

// Evaluate implements pricing.DiscountEngine.
//
// Rules are applied by descending priority. The first matching rule always
// applies; further rules stack only while every applied rule is combinable.
func (e *RuleEngine) Evaluate(ctx context.Context, pc pricing.PricingContext) (pricing.DiscountResult, error) {
	if e == nil || e.Source == nil {
		return pricing.DiscountResult{}, errors.New("discount: rule engine not configured")
	}
	rules, err := e.rules(ctx)
	if err != nil {
		return pricing.DiscountResult{}, err
	}
	codeDiscountID, err := e.codeDiscount(ctx, pc)
	if err != nil {
		return pricing.DiscountResult{}, err
	}

	var (
		result  pricing.DiscountResult
		applied int
		stackOK = true
	)
	for _, rule := range rules {
		if !rule.Matches(pc, codeDiscountID) {
			continue
		}
		if applied > 0 && (!stackOK || !rule.Combinable) {
			continue
		}
		part := Compute(EligibleSubtotal(pc.Cart.Items, rule), rule)
		if part.DiscountTotalAmount == 0 && part.Shipping.DiscountAmount == 0 {
			continue
		}
		result.DiscountTotalAmount += part.DiscountTotalAmount
		result.Shipping.DiscountAmount = max(result.Shipping.DiscountAmount, part.Shipping.DiscountAmount)
		if codeDiscountID != 0 && rule.ID == codeDiscountID {
			result.CouponApplied = true
		}
		applied++
		stackOK = stackOK && rule.Combinable
	}
	if result.DiscountTotalAmount > pc.Cart.Subtotal {
		result.DiscountTotalAmount = pc.Cart.Subtotal
	}
	return result, nil
}

// Invalidate drops cached rules so the next evaluation reloads them.
func (e *RuleEngine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cached = nil
	e.loadedAt = time.Time{}
}

func (e *RuleEngine) rules(ctx context.Context) ([]Rule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if e.cached != nil && e.CacheTTL > 0 && now.Sub(e.loadedAt) < e.CacheTTL {
		return e.cached, nil
	}
	rules, err := e.Source.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("discount: load rules: %w", err)
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	e.cached = sorted
	e.loadedAt = now
	return sorted, nil
}

// codeDiscount resolves the discount referenced by the context's coupon. A
// coupon that no longer passes validation grants nothing.
func (e *RuleEngine) codeDiscount(ctx context.Context, pc pricing.PricingContext) (int64, error) {
	if pc.Code == "" || e.Coupons == nil {
		return 0, nil
	}
	c, err := e.Coupons.FindByCode(ctx, pc.Code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("discount: resolve coupon: %w", err)
	}
	if err := coupon.Check(c, pc.Now); err != nil {
		e.Logger.Info().Str("code", pc.Code).Err(err).Msg("discount_coupon_no_longer_valid")
		return 0, nil
	}
	return c.DiscountID, nil
}

func (e *RuleEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
