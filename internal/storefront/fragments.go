package storefront

import "github.com/noah-isme/toko-pricing/internal/pricing"

// Fragment names served under /fragments/{name}.
const (
	FragmentTotal    = "total"
	FragmentTax      = "tax"
	FragmentShipping = "shipping"
	FragmentCoupon   = "coupon"
)

// FragmentNames lists every fragment in render order.
func FragmentNames() []string {
	return []string{FragmentTotal, FragmentTax, FragmentShipping, FragmentCoupon}
}

// TotalFragment summarises the order total.
type TotalFragment struct {
	Currency          string `json:"currency"`
	Subtotal          string `json:"subtotal"`
	Discount          string `json:"discount"`
	TotalExcludingTax string `json:"totalExcludingTax"`
	TotalIncludingTax string `json:"totalIncludingTax"`
}

// TaxFragment shows the tax line.
type TaxFragment struct {
	Currency string `json:"currency"`
	Tax      string `json:"tax"`
}

// ShippingFragment shows the shipping charge and any shipping discount.
type ShippingFragment struct {
	Currency         string `json:"currency"`
	Shipping         string `json:"shipping"`
	ShippingDiscount string `json:"shippingDiscount"`
	NetShipping      string `json:"netShipping"`
	Free             bool   `json:"free"`
}

// CouponFragment shows the stored coupon, if any. Applied is false while a
// stored code that has expired or run out of uses still sits in the checkout.
type CouponFragment struct {
	Code     string `json:"code,omitempty"`
	Applied  bool   `json:"applied"`
	Discount string `json:"discount"`
}

// Render returns the named fragment over t. Fragments never compute
// anything themselves.
func Render(name string, t pricing.Totals) (any, bool) {
	switch name {
	case FragmentTotal:
		return TotalFragment{
			Currency:          t.Currency,
			Subtotal:          pricing.FormatAmount(t.Subtotal),
			Discount:          pricing.FormatAmount(t.Discount),
			TotalExcludingTax: pricing.FormatAmount(t.TotalExcludingTax),
			TotalIncludingTax: pricing.FormatAmount(t.TotalIncludingTax),
		}, true
	case FragmentTax:
		return TaxFragment{Currency: t.Currency, Tax: pricing.FormatAmount(t.Tax)}, true
	case FragmentShipping:
		return ShippingFragment{
			Currency:         t.Currency,
			Shipping:         pricing.FormatAmount(t.ShippingAmount),
			ShippingDiscount: pricing.FormatAmount(t.ShippingDiscount),
			NetShipping:      pricing.FormatAmount(t.NetShipping),
			Free:             t.NetShipping == 0,
		}, true
	case FragmentCoupon:
		return CouponFragment{
			Code:     t.CouponCode,
			Applied:  t.CouponApplied,
			Discount: pricing.FormatAmount(t.Discount),
		}, true
	default:
		return nil, false
	}
}

// RenderAll renders every fragment keyed by name.
func RenderAll(t pricing.Totals) map[string]any {
	out := make(map[string]any, 4)
	for _, name := range FragmentNames() {
		frag, _ := Render(name, t)
		out[name] = frag
	}
	return out
}
