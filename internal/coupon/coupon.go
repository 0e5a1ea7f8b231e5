package coupon

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/toko-pricing/internal/common"
)

// Coupon is a redeemable code pointing at a discount. The pricing pipeline
// only ever reads coupons; redemption happens at order settlement.
type Coupon struct {
	ID         int64
	DiscountID int64
	Code       string
	ExpiresAt  *time.Time
	MaxUses    *int
	UsageCount int
}

// Reason identifies why a coupon was rejected.
type Reason string

const (
	ReasonEmpty         Reason = "empty"
	ReasonNotFound      Reason = "not_found"
	ReasonExpired       Reason = "expired"
	ReasonExhaustedUses Reason = "exhausted_uses"
)

var reasonMessages = map[Reason]string{
	ReasonEmpty:         "coupon code is required",
	ReasonNotFound:      "coupon code not found",
	ReasonExpired:       "coupon has expired",
	ReasonExhaustedUses: "coupon has reached its usage limit",
}

// Rejection is returned when a coupon code cannot be applied.
type Rejection struct {
	Code   string
	Reason Reason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", r.Code, r.Reason)
}

// Message is a user-facing description of the rejection.
func (r *Rejection) Message() string {
	if msg, ok := reasonMessages[r.Reason]; ok {
		return msg
	}
	return "coupon rejected"
}

// AppError renders the rejection as a field-level validation error.
func (r *Rejection) AppError() *common.AppError {
	return common.NewValidationError("code", string(r.Reason), r.Message(), r)
}

// IsRejection reports whether err is a coupon rejection and returns it.
func IsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Check validates c at now. Expiry is evaluated before usage so an expired
// coupon is always reported as expired.
func Check(c Coupon, now time.Time) error {
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return &Rejection{Code: c.Code, Reason: ReasonExpired}
	}
	if c.MaxUses != nil && c.UsageCount >= *c.MaxUses {
		return &Rejection{Code: c.Code, Reason: ReasonExhaustedUses}
	}
	return nil
}
