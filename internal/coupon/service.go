package coupon

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// Store captures the coupon storage operations the service needs.
type Store interface {
	FindByCode(ctx context.Context, code string) (catalog.Coupon, error)
	IncrementUsage(ctx context.Context, id string) error
}

// Request is a validation call: a code against a priced cart snapshot.
type Request struct {
	Code     string
	Lines    []Line
	Subtotal decimal.Decimal
	UserID   string
}

// Result is the client-facing validation outcome.
type Result struct {
	Valid              bool            `json:"valid"`
	Reason             Reason          `json:"reason"`
	Message            string          `json:"message"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	Coupon             *Applied        `json:"coupon,omitempty"`
	IsProductSpecific  bool            `json:"isProductSpecific"`
	AppliedToCartItems []string        `json:"appliedToCartItems"`
}

// Service validates coupons and records their usage.
type Service struct {
	Store  Store
	Logger zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Check looks the code up and evaluates it. Rule failures come back as
// *RuleError; any other error is a storage failure.
func (s *Service) Check(ctx context.Context, req Request) (Applied, error) {
	if s == nil || s.Store == nil {
		return Applied{}, errors.New("coupon service not configured")
	}
	code := catalog.NormalizeCode(req.Code)
	if code == "" {
		return Applied{}, reject(ReasonInvalidCode, ErrInvalidCode, "Please enter a coupon code")
	}
	c, err := s.Store.FindByCode(ctx, code)
	if errors.Is(err, catalog.ErrNotFound) {
		return Applied{}, reject(ReasonInvalidCode, ErrInvalidCode, "Coupon %s is not valid", code)
	}
	if err != nil {
		return Applied{}, err
	}
	eval, err := Evaluate(c, req.Lines, req.Subtotal, s.now())
	if err != nil {
		return Applied{}, err
	}
	return newApplied(c, eval), nil
}

// Validate is Check shaped for API responses. The returned error is non-nil
// only when the coupon could not be evaluated at all.
func (s *Service) Validate(ctx context.Context, req Request) (Result, error) {
	applied, err := s.Check(ctx, req)
	if err != nil {
		var re *RuleError
		if !errors.As(err, &re) {
			obs.CouponValidationTotal.WithLabelValues("ERROR").Inc()
			return Result{}, err
		}
		obs.CouponValidationTotal.WithLabelValues(string(re.Reason)).Inc()
		s.Logger.Debug().
			Str("code", strings.ToUpper(strings.TrimSpace(req.Code))).
			Str("user_id", req.UserID).
			Str("reason", string(re.Reason)).
			Msg("coupon rejected")
		return Result{
			Valid:              false,
			Reason:             re.Reason,
			Message:            re.Message,
			DiscountAmount:     decimal.Zero,
			AppliedToCartItems: []string{},
		}, nil
	}
	obs.CouponValidationTotal.WithLabelValues(string(ReasonValid)).Inc()
	return Result{
		Valid:              true,
		Reason:             ReasonValid,
		Message:            "Coupon applied",
		DiscountAmount:     applied.DiscountAmount,
		Coupon:             &applied,
		IsProductSpecific:  applied.IsProductSpecific,
		AppliedToCartItems: applied.AppliedToCartItems,
	}, nil
}

// Revalidate re-runs the rules for an already applied coupon against the
// current lines and returns it repriced.
func (s *Service) Revalidate(ctx context.Context, applied Applied, lines []Line) (Applied, error) {
	return s.Check(ctx, Request{Code: applied.Code, Lines: lines, Subtotal: Subtotal(lines)})
}

// RecordUsage increments the coupon's usedCount. It never returns an error;
// the boolean tells the caller whether the increment landed.
func (s *Service) RecordUsage(ctx context.Context, couponID string) bool {
	if s == nil || s.Store == nil || strings.TrimSpace(couponID) == "" {
		return false
	}
	if err := s.Store.IncrementUsage(ctx, couponID); err != nil {
		obs.CouponUsageRecordTotal.WithLabelValues("error").Inc()
		s.Logger.Warn().Err(err).Str("coupon_id", couponID).Msg("coupon usage not recorded")
		return false
	}
	obs.CouponUsageRecordTotal.WithLabelValues("ok").Inc()
	return true
}
