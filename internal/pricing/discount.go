package pricing

import (
	"context"
	"errors"
	"fmt"
)

// ErrDiscountUnavailable wraps any failure of the discount engine.
var ErrDiscountUnavailable = errors.New("pricing: discount engine unavailable")

// DiscountEngine evaluates discount rules against a pricing context.
type DiscountEngine interface {
	Evaluate(ctx context.Context, pc PricingContext) (DiscountResult, error)
}

// EngineFunc adapts a function into a DiscountEngine.
type EngineFunc func(ctx context.Context, pc PricingContext) (DiscountResult, error)

// Evaluate implements DiscountEngine.
func (f EngineFunc) Evaluate(ctx context.Context, pc PricingContext) (DiscountResult, error) {
	return f(ctx, pc)
}

// NoDiscount is an engine that never grants a discount.
var NoDiscount DiscountEngine = EngineFunc(func(context.Context, PricingContext) (DiscountResult, error) {
	return DiscountResult{}, nil
})

// evaluateDiscount calls the engine, converting panics into errors and
// flooring negative amounts. On failure the zero result is returned together
// with an error wrapping ErrDiscountUnavailable.
func evaluateDiscount(ctx context.Context, engine DiscountEngine, pc PricingContext) (res DiscountResult, err error) {
	if engine == nil {
		return DiscountResult{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			res = DiscountResult{}
			err = fmt.Errorf("%w: panic: %v", ErrDiscountUnavailable, r)
		}
	}()
	res, err = engine.Evaluate(ctx, pc)
	if err != nil {
		return DiscountResult{}, fmt.Errorf("%w: %w", ErrDiscountUnavailable, err)
	}
	res.DiscountTotalAmount = nonNegative(res.DiscountTotalAmount)
	res.Shipping.DiscountAmount = nonNegative(res.Shipping.DiscountAmount)
	return res, nil
}
