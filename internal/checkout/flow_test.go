package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/payment"
)

type stubProcessor struct {
	calls []Request
	err   error
}

func (s *stubProcessor) Checkout(_ context.Context, req Request) (Result, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{OrderID: "ord-1", PaymentID: "pay_1"}, nil
}

func readySession(t *testing.T) *Session {
	t.Helper()
	s := NewSession("u1", cart.State{Lines: []cart.Line{{ProductID: "p1", Quantity: 1}}})
	require.NoError(t, s.Review())
	require.NoError(t, s.SubmitShipping(validAddress(), "Express"))
	require.NoError(t, s.SubmitPayment(cardInfo()))
	return s
}

func TestSessionGuards(t *testing.T) {
	s := NewSession("u1", cart.State{})
	require.Equal(t, StageSummary, s.Stage)
	require.ErrorIs(t, s.SubmitShipping(validAddress(), ""), ErrWrongStage)

	require.NoError(t, s.Review())
	require.Equal(t, StageShipping, s.Stage)

	bad := validAddress()
	bad.Phone = "123456"
	err := s.SubmitShipping(bad, "")
	requireKind(t, err, KindValidation)
	require.Equal(t, StageShipping, s.Stage, "rejected shipping stays put")
	require.NotNil(t, s.LastError)

	err = s.SubmitShipping(validAddress(), "drone")
	requireKind(t, err, KindValidation)

	addr := validAddress()
	addr.Name = "  Asha Rao "
	require.NoError(t, s.SubmitShipping(addr, ""))
	require.Equal(t, StagePayment, s.Stage)
	require.Equal(t, "Asha Rao", s.Address.Name)
	require.Equal(t, "standard", s.ShippingMethod)
	require.Nil(t, s.LastError)

	requireKind(t, s.SubmitPayment(payment.Info{Method: "card", CardNumber: "4111"}), KindValidation)
	require.NoError(t, s.SubmitPayment(payment.Info{Method: "UPI", UPIID: "asha@okbank"}))
	require.Equal(t, "upi", s.Payment.Method)
}

func TestFlowConfirmCompletes(t *testing.T) {
	s := readySession(t)
	proc := &stubProcessor{}
	flow := Flow{Session: s, Processor: proc}

	res, err := flow.Confirm(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ord-1", res.OrderID)
	require.Equal(t, StageCompleted, s.Stage)
	require.Len(t, proc.calls, 1)
	require.Equal(t, "express", proc.calls[0].ShippingMethod)
	require.Equal(t, validAddress(), proc.calls[0].Address)

	_, err = flow.Confirm(context.Background())
	require.ErrorIs(t, err, ErrWrongStage)
}

func TestFlowConfirmFailureReturnsToPayment(t *testing.T) {
	s := readySession(t)
	proc := &stubProcessor{err: newError(KindPersistence, "persist", "could not save your order, please retry", errors.New("boom"))}
	flow := Flow{Session: s, Processor: proc}

	_, err := flow.Confirm(context.Background())
	requireKind(t, err, KindPersistence)
	require.Equal(t, StagePayment, s.Stage)
	require.Equal(t, "persist", s.LastError.Step)
	require.Equal(t, "express", s.ShippingMethod, "shipping details are kept for the retry")

	proc.err = nil
	_, err = flow.Confirm(context.Background())
	require.NoError(t, err)
	require.Equal(t, StageCompleted, s.Stage)
}

func TestFlowWrapsUnknownErrors(t *testing.T) {
	s := readySession(t)
	flow := Flow{Session: s, Processor: &stubProcessor{err: errors.New("unexpected")}}

	_, err := flow.Confirm(context.Background())
	requireKind(t, err, KindPersistence)
	require.Equal(t, StagePayment, s.Stage)
}
