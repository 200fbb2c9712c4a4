package coupon

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/catalog"
)

// Reason is the machine readable rejection code returned to clients.
type Reason string

const (
	ReasonValid           Reason = "VALID"
	ReasonInvalidCode     Reason = "INVALID_CODE"
	ReasonInactive        Reason = "INACTIVE"
	ReasonNotYetValid     Reason = "NOT_YET_VALID"
	ReasonExpired         Reason = "EXPIRED"
	ReasonUsageLimit      Reason = "USAGE_LIMIT_REACHED"
	ReasonNoEligibleItems Reason = "NO_ELIGIBLE_ITEMS"
	ReasonMinOrderNotMet  Reason = "MIN_ORDER_NOT_MET"
)

var (
	// ErrInvalidCode is returned when no coupon matches the code.
	ErrInvalidCode = errors.New("coupon code not found")
	// ErrInactive is returned for a coupon switched off by the merchant.
	ErrInactive = errors.New("coupon inactive")
	// ErrNotYetValid is returned before the coupon's start date.
	ErrNotYetValid = errors.New("coupon not yet valid")
	// ErrExpired is returned after the coupon's end date.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached indicates the coupon has exhausted its global quota.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrNoEligibleItems is returned when a product-specific coupon matches no cart line.
	ErrNoEligibleItems = errors.New("coupon has no eligible items")
	// ErrMinOrderNotMet indicates the (eligible) subtotal is below the coupon minimum.
	ErrMinOrderNotMet = errors.New("coupon minimum order not met")
)

// RuleError is a coupon rejection with a shopper-facing message.
type RuleError struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *RuleError) Error() string { return e.Message }

func (e *RuleError) Unwrap() error { return e.Err }

func reject(reason Reason, err error, format string, args ...any) *RuleError {
	return &RuleError{Reason: reason, Err: err, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason from err, or "" when err is not a
// coupon rule failure.
func ReasonOf(err error) Reason {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

// Line is a cart line joined with the product's current price.
type Line struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Subtotal sums price x quantity over lines.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

// Evaluation is the outcome of applying a coupon to a cart.
type Evaluation struct {
	Discount        decimal.Decimal
	Eligible        decimal.Decimal
	ProductSpecific bool
	AppliedTo       []string
}

// ProductSpecific reports whether c only discounts listed products.
func ProductSpecific(c catalog.Coupon) bool {
	return c.IsProductSpecific || len(c.ApplicableProducts) > 0
}

// Evaluate runs the eligibility rules in order and computes the discount. It
// has no side effects.
func Evaluate(c catalog.Coupon, lines []Line, cartSubtotal decimal.Decimal, now time.Time) (Evaluation, error) {
	if !c.IsActive {
		return Evaluation{}, reject(ReasonInactive, ErrInactive, "Coupon %s is no longer active", c.Code)
	}
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return Evaluation{}, reject(ReasonNotYetValid, ErrNotYetValid,
			"Coupon %s is valid from %s", c.Code, c.StartDate.Format("2006-01-02"))
	}
	if !c.EndDate.IsZero() && now.After(c.EndDate) {
		return Evaluation{}, reject(ReasonExpired, ErrExpired, "Coupon %s has expired", c.Code)
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return Evaluation{}, reject(ReasonUsageLimit, ErrUsageLimitReached, "Coupon %s has reached its usage limit", c.Code)
	}

	eval := Evaluation{ProductSpecific: ProductSpecific(c)}
	base := cartSubtotal
	if eval.ProductSpecific {
		eligible := make([]Line, 0, len(lines))
		seen := make(map[string]struct{})
		for _, l := range lines {
			if !c.Applies(l.ProductID) || l.Quantity <= 0 {
				continue
			}
			eligible = append(eligible, l)
			if _, dup := seen[l.ProductID]; !dup {
				seen[l.ProductID] = struct{}{}
				eval.AppliedTo = append(eval.AppliedTo, l.ProductID)
			}
		}
		if len(eligible) == 0 {
			return Evaluation{}, reject(ReasonNoEligibleItems, ErrNoEligibleItems,
				"Coupon %s does not apply to any item in your cart", c.Code)
		}
		sort.Strings(eval.AppliedTo)
		base = Subtotal(eligible)
		if c.MinOrderAmount.IsPositive() && base.LessThan(c.MinOrderAmount) {
			return Evaluation{}, reject(ReasonMinOrderNotMet, ErrMinOrderNotMet,
				"Eligible items must total at least %s to use %s", c.MinOrderAmount.StringFixed(2), c.Code)
		}
	} else if c.MinOrderAmount.IsPositive() && base.LessThan(c.MinOrderAmount) {
		return Evaluation{}, reject(ReasonMinOrderNotMet, ErrMinOrderNotMet,
			"Order must total at least %s to use %s", c.MinOrderAmount.StringFixed(2), c.Code)
	}

	eval.Eligible = base
	eval.Discount = Compute(c, base)
	return eval, nil
}

var hundred = decimal.NewFromInt(100)

// Compute returns the discount for base, clamped to [0, base] and to
// MaxDiscountAmount for percentage coupons.
func Compute(c catalog.Coupon, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch c.DiscountType {
	case catalog.DiscountPercentage:
		discount = base.Mul(c.DiscountValue).Div(hundred).Round(2)
		if c.MaxDiscountAmount.IsPositive() && discount.GreaterThan(c.MaxDiscountAmount) {
			discount = c.MaxDiscountAmount
		}
	case catalog.DiscountFixed:
		discount = c.DiscountValue
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(base) {
		discount = base
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// Applied is the session-scoped result of a successful validation, kept on
// the cart until checkout or removal.
type Applied struct {
	Code               string          `json:"code"`
	CouponID           string          `json:"couponId"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	DiscountType       string          `json:"discountType"`
	DiscountValue      decimal.Decimal `json:"discountValue"`
	IsProductSpecific  bool            `json:"isProductSpecific"`
	AppliedToCartItems []string        `json:"appliedToCartItems"`
}

// Covers reports whether the coupon was applied to productID.
func (a Applied) Covers(productID string) bool {
	for _, id := range a.AppliedToCartItems {
		if id == productID {
			return true
		}
	}
	return false
}

func newApplied(c catalog.Coupon, eval Evaluation) Applied {
	applied := eval.AppliedTo
	if applied == nil {
		applied = []string{}
	}
	return Applied{
		Code:               c.Code,
		CouponID:           c.ID,
		DiscountAmount:     eval.Discount,
		DiscountType:       c.DiscountType,
		DiscountValue:      c.DiscountValue,
		IsProductSpecific:  eval.ProductSpecific,
		AppliedToCartItems: applied,
	}
}
