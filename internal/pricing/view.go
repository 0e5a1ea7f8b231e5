package pricing

// View renders Totals for API responses with amounts as fixed-point strings.
type View struct {
	Currency          string   `json:"currency"`
	CouponCode        string   `json:"couponCode,omitempty"`
	CouponApplied     bool     `json:"couponApplied"`
	Subtotal          string   `json:"subtotal"`
	Discount          string   `json:"discount"`
	Shipping          string   `json:"shipping"`
	ShippingDiscount  string   `json:"shippingDiscount"`
	NetShipping       string   `json:"netShipping"`
	Tax               string   `json:"tax"`
	TotalExcludingTax string   `json:"totalExcludingTax"`
	TotalIncludingTax string   `json:"totalIncludingTax"`
	Degraded          []string `json:"degraded,omitempty"`
}

// NewView converts totals into their API representation.
func NewView(t Totals) View {
	return View{
		Currency:          t.Currency,
		CouponCode:        t.CouponCode,
		CouponApplied:     t.CouponApplied,
		Subtotal:          FormatAmount(t.Subtotal),
		Discount:          FormatAmount(t.Discount),
		Shipping:          FormatAmount(t.ShippingAmount),
		ShippingDiscount:  FormatAmount(t.ShippingDiscount),
		NetShipping:       FormatAmount(t.NetShipping),
		Tax:               FormatAmount(t.Tax),
		TotalExcludingTax: FormatAmount(t.TotalExcludingTax),
		TotalIncludingTax: FormatAmount(t.TotalIncludingTax),
		Degraded:          t.Degraded,
	}
}
