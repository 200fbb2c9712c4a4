package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Stage is a checkout session state.
type Stage string

const (
	StageSummary    Stage = "summary"
	StageShipping   Stage = "shipping"
	StagePayment    Stage = "payment"
	StageProcessing Stage = "processing"
	StageCompleted  Stage = "completed"
)

// ErrWrongStage is returned when a transition is attempted from the wrong state.
var ErrWrongStage = errors.New("checkout: transition not allowed in current stage")

// Session carries one shopper through Summary, Shipping and Payment. The
// cart and coupon are a snapshot taken when the session opens.
type Session struct {
	UserID         string
	Email          string
	Cart           cart.State
	Stage          Stage
	Address        catalog.Address
	ShippingMethod string
	Payment        payment.Info
	LastError      *Error
	Result         *Result
}

func NewSession(userID string, state cart.State) *Session {
	return &Session{UserID: userID, Cart: state, Stage: StageSummary}
}

func (s *Session) expect(stage Stage) error {
	if s.Stage != stage {
		return fmt.Errorf("%w: %s, want %s", ErrWrongStage, s.Stage, stage)
	}
	return nil
}

// Review moves Summary -> Shipping.
func (s *Session) Review() error {
	if err := s.expect(StageSummary); err != nil {
		return err
	}
	s.Stage = StageShipping
	return nil
}

// SubmitShipping moves Shipping -> Payment when the address is complete. On
// rejection the session stays in Shipping.
func (s *Session) SubmitShipping(addr catalog.Address, method string) error {
	if err := s.expect(StageShipping); err != nil {
		return err
	}
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = pricing.MethodStandard
	}
	if err := ValidateShipping(addr, method); err != nil {
		s.LastError, _ = AsError(err)
		return err
	}
	s.Address = NormalizeAddress(addr)
	s.ShippingMethod = method
	s.LastError = nil
	s.Stage = StagePayment
	return nil
}

// SubmitPayment records payment details; the Payment -> Processing move
// itself happens in Flow.Confirm.
func (s *Session) SubmitPayment(info payment.Info) error {
	if err := s.expect(StagePayment); err != nil {
		return err
	}
	info.Method = strings.ToLower(strings.TrimSpace(info.Method))
	if err := ValidatePayment(info); err != nil {
		s.LastError, _ = AsError(err)
		return err
	}
	s.Payment = info
	s.LastError = nil
	return nil
}

// Request builds the processing input from the captured details.
func (s *Session) Request() Request {
	return Request{
		UserID:         s.UserID,
		Email:          s.Email,
		Lines:          append([]cart.Line(nil), s.Cart.Lines...),
		Coupon:         s.Cart.Coupon,
		Address:        s.Address,
		ShippingMethod: s.ShippingMethod,
		Payment:        s.Payment,
	}
}
