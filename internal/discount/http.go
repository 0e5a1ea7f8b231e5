package discount

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

// HTTPEngine delegates evaluation to an external rule service.
type HTTPEngine struct {
	Endpoint string
	Client   resilience.HTTPClient
}

type wireItem struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice string  `json:"unit_price"`
}

type wireCart struct {
	Subtotal string     `json:"subtotal"`
	Items    []wireItem `json:"items"`
}

type wireContext struct {
	CurrencyCode string   `json:"currency_code"`
	ChannelID    int64    `json:"channel_id"`
	UserID       *string  `json:"user_id"`
	GroupIDs     []int64  `json:"group_ids"`
	PartnerTier  *string  `json:"partner_tier"`
	Now          string   `json:"now"`
	Code         string   `json:"code"`
	Cart         wireCart `json:"cart"`
}

type wireResult struct {
	DiscountTotalAmount decimal.Decimal `json:"discount_total_amount"`
	Shipping            struct {
		DiscountAmount decimal.Decimal `json:"discount_amount"`
	} `json:"shipping"`
	// CouponApplied is optional; engines that omit it are trusted to have
	// honoured any code they were sent.
	CouponApplied *bool `json:"coupon_applied"`
}

// Evaluate implements pricing.DiscountEngine.
func (e *HTTPEngine) Evaluate(ctx context.Context, pc pricing.PricingContext) (pricing.DiscountResult, error) {
	if e == nil || strings.TrimSpace(e.Endpoint) == "" {
		return pricing.DiscountResult{}, errors.New("discount: engine endpoint not configured")
	}
	body, err := json.Marshal(encodeContext(pc))
	if err != nil {
		return pricing.DiscountResult{}, fmt.Errorf("discount: encode context: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return pricing.DiscountResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.Client.Do(ctx, req)
	if err != nil {
		return pricing.DiscountResult{}, fmt.Errorf("discount: call engine: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return pricing.DiscountResult{}, fmt.Errorf("discount: engine responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out wireResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return pricing.DiscountResult{}, fmt.Errorf("discount: decode result: %w", err)
	}
	applied := pc.Code != ""
	if out.CouponApplied != nil {
		applied = applied && *out.CouponApplied
	}
	return pricing.DiscountResult{
		DiscountTotalAmount: pricing.ToMinor(out.DiscountTotalAmount),
		Shipping:            pricing.ShippingDiscount{DiscountAmount: pricing.ToMinor(out.Shipping.DiscountAmount)},
		CouponApplied:       applied,
	}, nil
}

func encodeContext(pc pricing.PricingContext) wireContext {
	items := make([]wireItem, 0, len(pc.Cart.Items))
	for _, it := range pc.Cart.Items {
		items = append(items, wireItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: pricing.FormatAmount(it.UnitPrice),
		})
	}
	groups := pc.GroupIDs
	if groups == nil {
		groups = []int64{}
	}
	return wireContext{
		CurrencyCode: pc.CurrencyCode,
		ChannelID:    pc.ChannelID,
		UserID:       pc.UserID,
		GroupIDs:     groups,
		PartnerTier:  pc.PartnerTier,
		Now:          pc.Now.UTC().Format(time.RFC3339),
		Code:         pc.Code,
		Cart: wireCart{
			Subtotal: pricing.FormatAmount(pc.Cart.Subtotal),
			Items:    items,
		},
	}
}
