package pricing

import "strings"

// ShippingResolver determines the shipping charge for a checkout.
//
// Precedence, first match wins: an explicitly selected shipping option with a
// positive price, the zone rate table, the default rate. When a free shipping
// threshold is configured and the cart subtotal reaches it, the configured
// rates resolve to zero; a selected option is still charged verbatim.
type ShippingResolver struct {
	zoneRates             map[string]Money
	defaultRate           Money
	freeShippingThreshold Money
}

// NewShippingResolver constructs a resolver. Zone codes are matched
// case-insensitively.
func NewShippingResolver(zoneRates map[string]Money, defaultRate, freeShippingThreshold Money) *ShippingResolver {
	rates := make(map[string]Money, len(zoneRates))
	for zone, rate := range zoneRates {
		key := normalizeZone(zone)
		if key == "" {
			continue
		}
		rates[key] = nonNegative(rate)
	}
	return &ShippingResolver{
		zoneRates:             rates,
		defaultRate:           nonNegative(defaultRate),
		freeShippingThreshold: nonNegative(freeShippingThreshold),
	}
}

// Resolve returns the shipping amount before any shipping discount.
func (r *ShippingResolver) Resolve(state CheckoutState, zoneCode string, subtotal Money) Money {
	if r == nil {
		return 0
	}
	if len(state.ShippingOptions) > 0 && state.ShippingOptions[0].Price > 0 {
		return state.ShippingOptions[0].Price
	}
	if r.freeShippingThreshold > 0 && subtotal >= r.freeShippingThreshold {
		return 0
	}
	if rate, ok := r.zoneRates[normalizeZone(zoneCode)]; ok {
		return rate
	}
	return r.defaultRate
}

func normalizeZone(zone string) string {
	return strings.ToUpper(strings.TrimSpace(zone))
}
